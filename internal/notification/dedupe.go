package notification

import (
	"context"
	"time"

	"github.com/prohmpiriya/event-booking-saga/pkg/redis"
)

const dedupeKeyPrefix = "idem:notification:"

// DefaultDedupeTTL is how long a handled event id is remembered
const DefaultDedupeTTL = 24 * time.Hour

// Deduper remembers which events were already handled
type Deduper interface {
	// Seen marks eventID as handled and reports whether it already was
	Seen(ctx context.Context, eventID string) (bool, error)
	// Forget clears the mark so a redelivery is handled again
	Forget(ctx context.Context, eventID string) error
}

// RedisDeduper implements Deduper with SETNX keys
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a new RedisDeduper
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Seen marks eventID once
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return d.client.MarkOnce(ctx, dedupeKeyPrefix+eventID, d.ttl)
}

// Forget deletes the mark
func (d *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, dedupeKeyPrefix+eventID).Err()
}
