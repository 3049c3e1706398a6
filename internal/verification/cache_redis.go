package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	viewKeyPrefix = "frontdesk:view:"

	// invalidatedMarker holds a key for the guard window after a write so a
	// reader that loaded the record earlier cannot cache its older view.
	invalidatedMarker = "-"

	DefaultInvalidationGuard = 10 * time.Second
)

// RedisViewCache keeps resolved views as JSON with a TTL.
type RedisViewCache struct {
	client redis.Cmdable
	ttl    time.Duration
	guard  time.Duration
}

type RedisViewCacheOption func(*RedisViewCache)

// WithInvalidationGuard sets how long an invalidated key refuses writes.
// It must exceed the time a Resolve takes from store read to cache write.
func WithInvalidationGuard(d time.Duration) RedisViewCacheOption {
	return func(c *RedisViewCache) {
		if d > 0 {
			c.guard = d
		}
	}
}

func NewRedisViewCache(client redis.Cmdable, ttl time.Duration, opts ...RedisViewCacheOption) *RedisViewCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &RedisViewCache{client: client, ttl: ttl, guard: DefaultInvalidationGuard}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisViewCache) Get(ctx context.Context, key string) (*View, error) {
	raw, err := c.client.Get(ctx, viewKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached view: %w", err)
	}
	if string(raw) == invalidatedMarker {
		return nil, nil
	}
	var v View
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached view: %w", err)
	}
	return &v, nil
}

// Set stores v unless the key is held, either by a live view or by the
// marker of a recent invalidation.
func (c *RedisViewCache) Set(ctx context.Context, key string, v *View) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if err := c.client.SetNX(ctx, viewKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache view: %w", err)
	}
	return nil
}

// Invalidate replaces any cached view with the marker for the guard window.
func (c *RedisViewCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, viewKeyPrefix+key, invalidatedMarker, c.guard).Err(); err != nil {
		return fmt.Errorf("invalidate view: %w", err)
	}
	return nil
}
