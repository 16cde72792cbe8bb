package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepository counts reads that reach the underlying store
type countingRepository struct {
	*MemoryEventRepository
	reads atomic.Int32
	delay time.Duration
}

func (r *countingRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.reads.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.MemoryEventRepository.GetByID(ctx, id)
}

func setupCached(t *testing.T) (*CachedEventRepository, *countingRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	inner := &countingRepository{MemoryEventRepository: seeded(t, newEvent("e1", domain.EventStatusPublished, 10, 10))}
	return NewCachedEventRepository(inner, client, 0), inner, mr
}

func TestCachedEventRepository_GetByIDCaches(t *testing.T) {
	ctx := context.Background()
	cached, inner, mr := setupCached(t)

	e, err := cached.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, e.AvailableTickets)
	assert.True(t, mr.Exists("event:snapshot:e1"))
	assert.Equal(t, DefaultSnapshotTTL, mr.TTL("event:snapshot:e1"))

	_, err = cached.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.reads.Load())
}

func TestCachedEventRepository_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	cached, inner, mr := setupCached(t)

	_, err := cached.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	assert.False(t, mr.Exists("event:snapshot:missing"))

	_, _ = cached.GetByID(ctx, "missing")
	assert.Equal(t, int32(2), inner.reads.Load())
}

func TestCachedEventRepository_AdjustInvalidates(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := setupCached(t)

	_, err := cached.GetByID(ctx, "e1")
	require.NoError(t, err)
	require.True(t, mr.Exists("event:snapshot:e1"))

	_, err = cached.AdjustTickets(ctx, "e1", 2, "k1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("event:snapshot:e1"))

	e, err := cached.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 8, e.AvailableTickets)

	_, err = cached.ReverseAdjustment(ctx, "e1", "k1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("event:snapshot:e1"))
}

func TestCachedEventRepository_ConcurrentMissesShareOneRead(t *testing.T) {
	ctx := context.Background()
	cached, inner, _ := setupCached(t)
	inner.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := cached.GetByID(ctx, "e1")
			assert.NoError(t, err)
			assert.Equal(t, "e1", e.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.reads.Load())
}

func TestCachedEventRepository_RedisDownFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	cached, inner, mr := setupCached(t)
	mr.Close()

	e, err := cached.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, int32(1), inner.reads.Load())

	_, err = cached.AdjustTickets(ctx, "e1", 1, "k1")
	assert.NoError(t, err)
}
