package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Nonce uint64 `json:"nonce"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCaches_SetGetDelete(t *testing.T) {
	_, client := newRedis(t)

	tests := []struct {
		name  string
		cache Cache
	}{
		{"memory", NewMemoryCache(time.Minute, time.Minute)},
		{"redis", NewRedisCache(client, "test:")},
		{"multilevel", NewMultiLevelCache(NewMemoryCache(time.Minute, time.Minute), NewRedisCache(client, "ml:"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			var got entry

			err := tt.cache.Get(ctx, "k", &got)
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, tt.cache.Set(ctx, "k", entry{Nonce: 7}, time.Minute))
			require.NoError(t, tt.cache.Get(ctx, "k", &got))
			assert.Equal(t, uint64(7), got.Nonce)

			require.NoError(t, tt.cache.Delete(ctx, "k"))
			assert.ErrorIs(t, tt.cache.Get(ctx, "k", &got), ErrCacheMiss)
		})
	}
}

func TestMemoryCache_StoresCopy(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	ctx := context.Background()

	v := &entry{Nonce: 1}
	require.NoError(t, c.Set(ctx, "k", v, time.Minute))
	v.Nonce = 99

	var got entry
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, uint64(1), got.Nonce)
}

func TestRedisCache_Expires(t *testing.T) {
	mr, client := newRedis(t)
	c := NewRedisCache(client, "ttl:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", entry{Nonce: 3}, time.Second))
	mr.FastForward(2 * time.Second)

	var got entry
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMultiLevelCache_BackfillsLocal(t *testing.T) {
	_, client := newRedis(t)
	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewRedisCache(client, "bf:")
	ml := NewMultiLevelCache(local, remote)
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", entry{Nonce: 5}, time.Minute))

	var got entry
	require.NoError(t, ml.Get(ctx, "k", &got))
	assert.Equal(t, uint64(5), got.Nonce)

	var fromLocal entry
	require.NoError(t, local.Get(ctx, "k", &fromLocal))
	assert.Equal(t, uint64(5), fromLocal.Nonce)
}

func TestAccountKey(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		address  string
		expected string
	}{
		{"plain", "https://api.testnet.hiro.so", "ST000000000000000000002AMW42H", "https://api.testnet.hiro.so|ST000000000000000000002AMW42H"},
		{"trailing slash", "https://api.testnet.hiro.so/", "ST000000000000000000002AMW42H", "https://api.testnet.hiro.so|ST000000000000000000002AMW42H"},
		{"mixed case host and address", "HTTPS://API.Testnet.Hiro.so", "st000000000000000000002amw42h", "https://api.testnet.hiro.so|ST000000000000000000002AMW42H"},
		{"path kept", "http://localhost:3999/v2/", "ST1", "http://localhost:3999/v2|ST1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AccountKey(tt.url, tt.address))
		})
	}
}

func TestCaches_RejectNonPositiveTTL(t *testing.T) {
	_, client := newRedis(t)
	tests := []struct {
		name  string
		cache Cache
	}{
		{"memory", NewMemoryCache(time.Minute, time.Minute)},
		{"redis", NewRedisCache(client, NamespaceNonce)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, tt.cache.Set(ctx, "k", entry{Nonce: 1}, 0), ErrInvalidTTL)
			assert.ErrorIs(t, tt.cache.Set(ctx, "k", entry{Nonce: 1}, -time.Second), ErrInvalidTTL)

			var got entry
			assert.ErrorIs(t, tt.cache.Get(ctx, "k", &got), ErrCacheMiss)
		})
	}
}
