package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "frontdesk:ratelimit:"

// RedisLimiter counts requests in fixed windows shared by every instance.
type RedisLimiter struct {
	client redis.Cmdable
	limit  Limit
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, limit Limit) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if !l.limit.valid() {
		return Result{Allowed: true}, nil
	}
	now := l.now()
	window := now.Truncate(l.limit.Window)
	resetAt := window.Add(l.limit.Window)
	redisKey := redisKeyPrefix + key + ":" + strconv.FormatInt(window.Unix(), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	res := Result{
		Allowed:   count <= l.limit.Requests,
		Limit:     l.limit.Requests,
		Remaining: max(l.limit.Requests-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}
