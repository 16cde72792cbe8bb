package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	eventSnapshotKeyPrefix = "event:snapshot:"

	// DefaultSnapshotTTL bounds how stale a cached snapshot can be
	DefaultSnapshotTTL = 30 * time.Second
)

// CachedEventRepository wraps EventRepository with a Redis snapshot cache.
// Concurrent misses for one event share a single database read.
type CachedEventRepository struct {
	repo  EventRepository
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedEventRepository creates a new CachedEventRepository
func NewCachedEventRepository(repo EventRepository, cache *redis.Client, ttl time.Duration) *CachedEventRepository {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &CachedEventRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

func snapshotKey(id string) string {
	return eventSnapshotKeyPrefix + id
}

// Create creates an event. Nothing is cached until the first read.
func (r *CachedEventRepository) Create(ctx context.Context, event *domain.Event) error {
	return r.repo.Create(ctx, event)
}

// GetByID retrieves an event by ID with caching
func (r *CachedEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var cached domain.Event
	err := r.cache.GetJSON(ctx, snapshotKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		logger.Get().WithContext(ctx).Warn("Event cache read failed",
			zap.String("event_id", id),
			zap.Error(err),
		)
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		event, err := r.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if setErr := r.cache.SetJSON(ctx, snapshotKey(id), event, r.ttl); setErr != nil {
			logger.Get().WithContext(ctx).Warn("Event cache write failed",
				zap.String("event_id", id),
				zap.Error(setErr),
			)
		}
		return event, nil
	})
	if err != nil {
		return nil, err
	}

	copied := *v.(*domain.Event)
	return &copied, nil
}

// AdjustTickets adjusts stock and invalidates the snapshot
func (r *CachedEventRepository) AdjustTickets(ctx context.Context, id string, delta int, idempotencyKey string) (*domain.AdjustResult, error) {
	result, err := r.repo.AdjustTickets(ctx, id, delta, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		r.invalidate(ctx, id)
	}
	return result, nil
}

// ReverseAdjustment reverses an adjustment and invalidates the snapshot
func (r *CachedEventRepository) ReverseAdjustment(ctx context.Context, id string, idempotencyKey string) (*domain.AdjustResult, error) {
	result, err := r.repo.ReverseAdjustment(ctx, id, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		r.invalidate(ctx, id)
	}
	return result, nil
}

func (r *CachedEventRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Del(ctx, snapshotKey(id)).Err(); err != nil {
		logger.Get().WithContext(ctx).Warn("Event cache invalidation failed",
			zap.String("event_id", id),
			zap.Error(err),
		)
	}
}
