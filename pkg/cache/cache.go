package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrInvalidTTL 缓存条目必须带过期时间，nonce 等链上状态不能永久缓存
	ErrInvalidTTL = errors.New("cache: ttl must be positive")
)

// Redis key 前缀，按用途区分
const (
	NamespaceNonce = "nonce:"
)

// Cache 定义通用缓存接口
type Cache interface {
	// Set 设置缓存，ttl 必须大于 0
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get 获取缓存，并将结果 Unmarshal 到 target 中
	Get(ctx context.Context, key string, target interface{}) error
	// Delete 删除缓存
	Delete(ctx context.Context, key string) error
}

// AccountKey 按 (节点, 地址) 生成缓存键。节点地址去掉末尾斜杠并小写 host，
// 地址统一大写，同一账户在不同写法下命中同一条目。
func AccountKey(networkURL, address string) string {
	node := strings.TrimRight(networkURL, "/")
	if u, err := url.Parse(node); err == nil && u.Host != "" {
		u.Host = strings.ToLower(u.Host)
		u.Scheme = strings.ToLower(u.Scheme)
		node = u.String()
	}
	return fmt.Sprintf("%s|%s", node, strings.ToUpper(address))
}

func checkTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
