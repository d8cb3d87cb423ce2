// Package nonce picks the next account nonce from node state and a local cache.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wallet-pipeline/internal/node"
	"wallet-pipeline/pkg/cache"
	"wallet-pipeline/pkg/errno"
	"wallet-pipeline/pkg/logger"
	"wallet-pipeline/pkg/monitor"
)

// AccountState is the node's nonce view of an account.
type AccountState struct {
	LastExecutedNonce     *uint64
	LastMempoolNonce      *uint64
	PossibleNextNonce     uint64
	DetectedMissingNonces []uint64
}

func FromNode(info *node.NonceInfo) AccountState {
	return AccountState{
		LastExecutedNonce:     info.LastExecutedTxNonce,
		LastMempoolNonce:      info.LastMempoolTxNonce,
		PossibleNextNonce:     info.PossibleNextNonce,
		DetectedMissingNonces: info.DetectedMissingNonces,
	}
}

// CorrectNextNonce fills the lowest detected gap when it lies above both the
// last executed and last mempool nonce; otherwise it returns PossibleNextNonce.
func CorrectNextNonce(s AccountState) uint64 {
	n, _ := correctNextNonce(s)
	return n
}

func correctNextNonce(s AccountState) (uint64, bool) {
	if len(s.DetectedMissingNonces) == 0 {
		return s.PossibleNextNonce, false
	}
	var lastExecuted, lastMempool uint64
	if s.LastExecutedNonce != nil {
		lastExecuted = *s.LastExecutedNonce
	}
	if s.LastMempoolNonce != nil {
		lastMempool = *s.LastMempoolNonce
	}
	missing := s.DetectedMissingNonces[0]
	if missing > lastExecuted && missing > lastMempool {
		return missing, true
	}
	return s.PossibleNextNonce, false
}

// Source 记录 nonce 的来源，用于日志和指标
type Source string

const (
	SourceNode  Source = "node"
	SourceGap   Source = "gap"
	SourceCache Source = "cache"
)

type Result struct {
	Nonce  uint64
	Source Source
}

// maxFilled 缓存中保留的本地已广播 nonce 个数
const maxFilled = 32

type cachedNonce struct {
	Next uint64 `json:"next"`
	// Filled 本地已广播成功的 nonce，节点尚未确认前用来跳过已被填上的缺口
	Filled    []uint64  `json:"filled,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c cachedNonce) filled(n uint64) bool {
	for _, f := range c.Filled {
		if f == n {
			return true
		}
	}
	return false
}

// Reconciler 结合节点状态与本地缓存计算下一个 nonce。
// 缓存只在广播成功后 (Advance) 写入，且只会增大。
type Reconciler struct {
	nodes *node.Pool
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewReconciler(nodes *node.Pool, c cache.Cache, ttl time.Duration) *Reconciler {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Reconciler{nodes: nodes, cache: c, ttl: ttl, log: logger.For(logger.ComponentNonce)}
}

// NextNonce fetches node state for address and combines it with the cache.
// A gap fill wins unless this wallet already broadcast that nonce; otherwise
// the larger of node and cached value is used. When the node is unreachable
// the cached value is used if present.
func (r *Reconciler) NextNonce(ctx context.Context, networkURL, address string) (Result, error) {
	entry, hasCached := r.entry(ctx, networkURL, address)

	info, err := r.nodes.Get(networkURL).AccountNonces(ctx, address)
	if err != nil {
		if hasCached {
			r.log.Warn("nonce fetch failed, using cached value",
				logger.Address(address), logger.Nonce(entry.Next), zap.Error(err))
			return r.observe(Result{Nonce: entry.Next, Source: SourceCache}), nil
		}
		return Result{}, errno.ErrNonceUnavailable.Wrap(err)
	}

	state := FromNode(info)
	next, gap := correctNextNonce(state)
	if gap && hasCached && entry.filled(next) {
		// 缺口是我们刚广播的交易，节点还没看到
		r.log.Debug("gap already filled locally", logger.Address(address), logger.Nonce(next))
		next, gap = state.PossibleNextNonce, false
	}
	switch {
	case gap:
		return r.observe(Result{Nonce: next, Source: SourceGap}), nil
	case hasCached && entry.Next > next:
		// 节点 mempool 尚未看到我们刚广播的交易
		return r.observe(Result{Nonce: entry.Next, Source: SourceCache}), nil
	default:
		return r.observe(Result{Nonce: next, Source: SourceNode}), nil
	}
}

// Advance records that signedNonce was accepted by the node. It never lowers
// the cached next value, so repeated calls are harmless.
func (r *Reconciler) Advance(ctx context.Context, networkURL, address string, signedNonce uint64) error {
	entry, ok := r.entry(ctx, networkURL, address)
	if ok && entry.Next > signedNonce && entry.filled(signedNonce) {
		return nil
	}
	if signedNonce+1 > entry.Next {
		entry.Next = signedNonce + 1
	}
	entry.Filled = append(entry.Filled, signedNonce)
	if len(entry.Filled) > maxFilled {
		entry.Filled = entry.Filled[len(entry.Filled)-maxFilled:]
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := r.cache.Set(ctx, cache.AccountKey(networkURL, address), entry, r.ttl); err != nil {
		return fmt.Errorf("advance nonce cache: %w", err)
	}
	r.log.Debug("nonce cache advanced", logger.Address(address), zap.Uint64("next", entry.Next))
	return nil
}

func (r *Reconciler) entry(ctx context.Context, networkURL, address string) (cachedNonce, bool) {
	var c cachedNonce
	err := r.cache.Get(ctx, cache.AccountKey(networkURL, address), &c)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("nonce cache read failed", zap.Error(err))
		}
		return cachedNonce{}, false
	}
	return c, true
}

func (r *Reconciler) observe(res Result) Result {
	monitor.NonceSourceTotal.WithLabelValues(string(res.Source)).Inc()
	return res
}
