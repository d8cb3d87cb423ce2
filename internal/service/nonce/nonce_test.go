package nonce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-pipeline/internal/node"
	"wallet-pipeline/pkg/cache"
	"wallet-pipeline/pkg/errno"
)

func u64(v uint64) *uint64 { return &v }

func TestCorrectNextNonce(t *testing.T) {
	tests := []struct {
		name  string
		state AccountState
		want  uint64
	}{
		{"normal behavior", AccountState{LastExecutedNonce: u64(53), PossibleNextNonce: 54}, 54},
		{"with a missing nonce", AccountState{LastExecutedNonce: u64(48), PossibleNextNonce: 54, DetectedMissingNonces: []uint64{49}}, 49},
		{"possible next nonce below missing nonce", AccountState{LastExecutedNonce: u64(48), PossibleNextNonce: 24, DetectedMissingNonces: []uint64{49}}, 49},
		{"executed nonce not below missing nonce", AccountState{LastExecutedNonce: u64(49), PossibleNextNonce: 50, DetectedMissingNonces: []uint64{49}}, 50},
		{"initial state", AccountState{PossibleNextNonce: 0}, 0},
		{"mempool nonce above missing nonce", AccountState{LastExecutedNonce: u64(40), LastMempoolNonce: u64(45), PossibleNextNonce: 46, DetectedMissingNonces: []uint64{44}}, 46},
		{"only the first missing nonce is considered", AccountState{LastExecutedNonce: u64(10), PossibleNextNonce: 20, DetectedMissingNonces: []uint64{12, 15}}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CorrectNextNonce(tt.state))
		})
	}
}

type fakeNode struct {
	node.Client
	info *node.NonceInfo
	err  error
}

func (f *fakeNode) AccountNonces(context.Context, string) (*node.NonceInfo, error) {
	return f.info, f.err
}

const (
	netURL = "http://node"
	addr   = "SP000000000000000000002Q6VF78"
)

func newReconciler(f *fakeNode) *Reconciler {
	return NewReconciler(node.NewStaticPool(f), cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)
}

func TestReconciler_NextNonce(t *testing.T) {
	ctx := context.Background()

	t.Run("node value without cache", func(t *testing.T) {
		r := newReconciler(&fakeNode{info: &node.NonceInfo{PossibleNextNonce: 7}})
		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 7, Source: SourceNode}, res)
	})

	t.Run("cache ahead of node after broadcast", func(t *testing.T) {
		f := &fakeNode{info: &node.NonceInfo{LastExecutedTxNonce: u64(6), PossibleNextNonce: 7}}
		r := newReconciler(f)
		require.NoError(t, r.Advance(ctx, netURL, addr, 7))

		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 8, Source: SourceCache}, res)
	})

	t.Run("gap fill wins over cache", func(t *testing.T) {
		f := &fakeNode{info: &node.NonceInfo{LastExecutedTxNonce: u64(3), PossibleNextNonce: 9, DetectedMissingNonces: []uint64{5}}}
		r := newReconciler(f)
		require.NoError(t, r.Advance(ctx, netURL, addr, 10))

		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 5, Source: SourceGap}, res)
	})

	t.Run("gap filled locally is not reused", func(t *testing.T) {
		f := &fakeNode{info: &node.NonceInfo{LastExecutedTxNonce: u64(48), PossibleNextNonce: 54, DetectedMissingNonces: []uint64{49}}}
		r := newReconciler(f)

		first, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 49, Source: SourceGap}, first)
		require.NoError(t, r.Advance(ctx, netURL, addr, first.Nonce))

		// 节点仍然报告 49 缺失
		second, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.NotEqual(t, first.Nonce, second.Nonce)
		assert.Equal(t, Result{Nonce: 54, Source: SourceNode}, second)
	})

	t.Run("filled gap below cached next", func(t *testing.T) {
		f := &fakeNode{info: &node.NonceInfo{LastExecutedTxNonce: u64(3), PossibleNextNonce: 9, DetectedMissingNonces: []uint64{5}}}
		r := newReconciler(f)
		require.NoError(t, r.Advance(ctx, netURL, addr, 10))
		require.NoError(t, r.Advance(ctx, netURL, addr, 5))

		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 11, Source: SourceCache}, res)
	})

	t.Run("node ahead of cache", func(t *testing.T) {
		f := &fakeNode{info: &node.NonceInfo{PossibleNextNonce: 20}}
		r := newReconciler(f)
		require.NoError(t, r.Advance(ctx, netURL, addr, 3))

		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), res.Nonce)
	})

	t.Run("node down falls back to cache", func(t *testing.T) {
		f := &fakeNode{err: errors.New("boom")}
		r := newReconciler(f)
		require.NoError(t, r.Advance(ctx, netURL, addr, 4))

		res, err := r.NextNonce(ctx, netURL, addr)
		require.NoError(t, err)
		assert.Equal(t, Result{Nonce: 5, Source: SourceCache}, res)
	})

	t.Run("node down without cache", func(t *testing.T) {
		r := newReconciler(&fakeNode{err: errors.New("boom")})
		_, err := r.NextNonce(ctx, netURL, addr)
		assert.ErrorIs(t, err, errno.ErrNonceUnavailable)
		assert.True(t, errno.Retryable(err))
	})
}

func TestReconciler_AdvanceNeverLowers(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(&fakeNode{err: errors.New("offline")})

	require.NoError(t, r.Advance(ctx, netURL, addr, 10))
	require.NoError(t, r.Advance(ctx, netURL, addr, 10))
	require.NoError(t, r.Advance(ctx, netURL, addr, 4))

	res, err := r.NextNonce(ctx, netURL, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), res.Nonce)
}

func TestReconciler_CacheIsPerNetwork(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(&fakeNode{err: errors.New("offline")})
	require.NoError(t, r.Advance(ctx, "http://mainnet", addr, 1))

	_, err := r.NextNonce(ctx, "http://testnet", addr)
	assert.ErrorIs(t, err, errno.ErrNonceUnavailable)
}
