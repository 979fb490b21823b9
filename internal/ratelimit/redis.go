package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed windows between server instances. The first
// request in a window creates the key with its expiry; later ones only
// increment it.
type RedisLimiter struct {
	R      *redis.Client
	limit  int64
	period time.Duration
}

func NewRedisLimiter(r *redis.Client, limit int64, period time.Duration) *RedisLimiter {
	return &RedisLimiter{R: r, limit: limit, period: period}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := "rl:" + key
	pipe := l.R.TxPipeline()
	pipe.SetNX(ctx, k, 0, l.period)
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = l.period
	}
	return newResult(incr.Val(), l.limit, time.Now().Add(remaining)), nil
}
