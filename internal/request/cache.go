package request

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache remembers requests known to be paid. Only positive answers are
// cached, so a stale entry can never hide a payment.
type StatusCache interface {
	IsPaid(ctx context.Context, requestID string) (bool, error)
	MarkPaid(ctx context.Context, requestID string) error
	Forget(ctx context.Context, requestID string) error
}

type RedisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatusCache(rdb *redis.Client, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStatusCache{rdb: rdb, ttl: ttl}
}

func statusKey(requestID string) string {
	return "song_requests:paid:" + requestID
}

func (c *RedisStatusCache) IsPaid(ctx context.Context, requestID string) (bool, error) {
	_, err := c.rdb.Get(ctx, statusKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisStatusCache) MarkPaid(ctx context.Context, requestID string) error {
	return c.rdb.Set(ctx, statusKey(requestID), "1", c.ttl).Err()
}

func (c *RedisStatusCache) Forget(ctx context.Context, requestID string) error {
	return c.rdb.Del(ctx, statusKey(requestID)).Err()
}

type NoopStatusCache struct{}

func (NoopStatusCache) IsPaid(context.Context, string) (bool, error) { return false, nil }

func (NoopStatusCache) MarkPaid(context.Context, string) error { return nil }

func (NoopStatusCache) Forget(context.Context, string) error { return nil }
