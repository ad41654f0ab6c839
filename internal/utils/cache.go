package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// TTLCache LRU + 过期时间的本地缓存
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, cacheItem[V]]
	now      func() time.Time
}

func NewTTLCache[V any](size int) (*TTLCache[V], error) {
	l, err := lru.New[string, cacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[V]{lruCache: l, now: time.Now}, nil
}

// Set 设置缓存，TTL 为过期时间
func (c *TTLCache[V]) Set(key string, data V, ttl time.Duration) {
	c.lruCache.Add(key, cacheItem[V]{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		var zero V
		return zero, false
	}
	return val.Data, true
}
