package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AvailabilityCache keeps serialized availability pages in Redis. Pages are
// keyed by a per-doctor version counter which writers bump after commit, so a
// page can be stale only until the next read after the write.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		client: client,
		ttl:    ttl,
	}
}

func versionKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("avail:ver:%s", doctorID.String())
}

func (c *AvailabilityCache) Version(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get availability version: %w", err)
	}
	return v, nil
}

func (c *AvailabilityCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get availability page: %w", err)
	}
	return b, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set availability page: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) Bump(ctx context.Context, doctorID uuid.UUID) error {
	if err := c.client.Incr(ctx, versionKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("bump availability version: %w", err)
	}
	return nil
}

// Ping is used by the readiness probe.
func (c *AvailabilityCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
