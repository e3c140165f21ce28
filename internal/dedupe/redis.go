package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// defaultTTL keeps idempotency keys and day counters long enough to absorb
// any realistic retry window without growing the keyspace forever.
const defaultTTL = 48 * time.Hour

// Redis implements engine.IdempotencyStore and engine.OrderCounter on a
// shared Redis instance so retried evaluations from any process are
// absorbed.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. prefix namespaces the keys; ttl <= 0
// falls back to 48h.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "tradecell"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) evalKey(key string) string {
	return fmt.Sprintf("%s:eval:%s", r.prefix, key)
}

func (r *Redis) dayKey(positionID, day string) string {
	return fmt.Sprintf("%s:orders:%s:%s", r.prefix, positionID, day)
}

// Seen reports whether the evaluation key was already resolved.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.evalKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark records an evaluation key as resolved.
func (r *Redis) Mark(ctx context.Context, key string) error {
	if err := r.client.SetNX(ctx, r.evalKey(key), 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// CountToday returns the fills executed for the position on the trading day.
func (r *Redis) CountToday(ctx context.Context, positionID, day string) (int, error) {
	n, err := r.client.Get(ctx, r.dayKey(positionID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// Increment bumps the position's fill count for the trading day.
func (r *Redis) Increment(ctx context.Context, positionID, day string) error {
	key := r.dayKey(positionID, day)
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}
