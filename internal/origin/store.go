// Package origin correlates a request token with the app tab that sent it, so
// the broadcast outcome can be relayed back.
package origin

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"lukechampine.com/blake3"
)

var ErrNotFound = errors.New("origin: no tab registered for request")

type Store interface {
	Register(ctx context.Context, requestToken, tabID string) error
	TabID(ctx context.Context, requestToken string) (string, error)
	Delete(ctx context.Context, requestToken string) error
}

// Key 请求 token 可能很长，用 blake3 摘要作为存储 key
func Key(requestToken string) string {
	sum := blake3.Sum256([]byte(requestToken))
	return hex.EncodeToString(sum[:16])
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(token string) string { return "origin:" + Key(token) }

func (s *RedisStore) Register(ctx context.Context, requestToken, tabID string) error {
	return s.client.Set(ctx, s.key(requestToken), tabID, s.ttl).Err()
}

func (s *RedisStore) TabID(ctx context.Context, requestToken string) (string, error) {
	tab, err := s.client.Get(ctx, s.key(requestToken)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return tab, err
}

func (s *RedisStore) Delete(ctx context.Context, requestToken string) error {
	return s.client.Del(ctx, s.key(requestToken)).Err()
}

type MemoryStore struct {
	mu   sync.Mutex
	tabs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tabs: make(map[string]string)}
}

func (s *MemoryStore) Register(_ context.Context, requestToken, tabID string) error {
	s.mu.Lock()
	s.tabs[Key(requestToken)] = tabID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) TabID(_ context.Context, requestToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.tabs[Key(requestToken)]
	if !ok {
		return "", ErrNotFound
	}
	return tab, nil
}

func (s *MemoryStore) Delete(_ context.Context, requestToken string) error {
	s.mu.Lock()
	delete(s.tabs, Key(requestToken))
	s.mu.Unlock()
	return nil
}
