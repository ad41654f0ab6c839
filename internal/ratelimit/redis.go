package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stackit:ratelimit:"

// Redis 多实例共享同一个计数：INCR，首次计数时设置过期时间
type Redis struct {
	client *redis.Client
	limit  int
	length time.Duration
}

func NewRedis(client *redis.Client, limit int, length time.Duration) *Redis {
	return &Redis{client: client, limit: limit, length: length}
}

func (r *Redis) Limit() int { return r.limit }

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	fullKey := keyPrefix + key

	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, fullKey, r.length).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}
	if count <= int64(r.limit) {
		return true, 0, nil
	}

	ttl, err := r.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// INCR 之后进程退出导致 key 没有过期时间
		_ = r.client.PExpire(ctx, fullKey, r.length).Err()
		ttl = r.length
	}
	return false, ttl, nil
}
