package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stackit:lock:"

// 只有持有者 token 匹配时才删除，避免误删他人在 TTL 过期后拿到的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis 多实例部署时的分布式锁：SET NX PX + token 校验释放
type Redis struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{
		client:     client,
		ttl:        ttl,
		retryDelay: 20 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	fullKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 释放不跟随请求 ctx，请求超时后也要把锁还回去
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err()
		})
	}, nil
}
