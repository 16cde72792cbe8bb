//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/migrations"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("inventory_db"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	url, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := database.NewMigrator(migrations.Inventory, "inventory", url)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresEventRepository(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresEventRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEvent("e1", domain.EventStatusPublished, 10, 10)))
	require.NoError(t, repo.Create(ctx, newEvent("draft", domain.EventStatusDraft, 10, 10)))

	t.Run("get", func(t *testing.T) {
		e, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, int64(10000), e.PriceCents)
		assert.Equal(t, domain.EventStatusPublished, e.Status)

		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("reserve dedupes by key", func(t *testing.T) {
		res, err := repo.AdjustTickets(ctx, "e1", 3, "k1")
		require.NoError(t, err)
		assert.Equal(t, 7, res.Event.AvailableTickets)

		res, err = repo.AdjustTickets(ctx, "e1", 3, "k1")
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, 7, res.Event.AvailableTickets)
	})

	t.Run("preconditions", func(t *testing.T) {
		_, err := repo.AdjustTickets(ctx, "e1", 50, "k2")
		assert.ErrorIs(t, err, domain.ErrInsufficientTickets)

		_, err = repo.AdjustTickets(ctx, "draft", 1, "k3")
		assert.ErrorIs(t, err, domain.ErrEventNotPublished)

		_, err = repo.AdjustTickets(ctx, "missing", 1, "k4")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("release clamps to capacity", func(t *testing.T) {
		res, err := repo.AdjustTickets(ctx, "e1", -20, "release:x")
		require.NoError(t, err)
		assert.Equal(t, 10, res.Event.AvailableTickets)
	})

	t.Run("reverse frees key", func(t *testing.T) {
		_, err := repo.AdjustTickets(ctx, "e1", 4, "client-key")
		require.NoError(t, err)

		res, err := repo.ReverseAdjustment(ctx, "e1", "client-key")
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, 10, res.Event.AvailableTickets)

		res, err = repo.ReverseAdjustment(ctx, "e1", "client-key")
		require.NoError(t, err)
		assert.True(t, res.Duplicate)

		res, err = repo.AdjustTickets(ctx, "e1", 4, "client-key")
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, 6, res.Event.AvailableTickets)
	})

	t.Run("replay must match", func(t *testing.T) {
		_, err := repo.AdjustTickets(ctx, "e1", 1, "client-key")
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)

		_, err = repo.AdjustTickets(ctx, "draft", 4, "client-key")
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)

		e, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 6, e.AvailableTickets)
	})

	t.Run("reverse before reserve", func(t *testing.T) {
		res, err := repo.ReverseAdjustment(ctx, "e1", "late-key")
		require.NoError(t, err)
		assert.True(t, res.Duplicate)

		_, err = repo.AdjustTickets(ctx, "e1", 2, "late-key")
		assert.ErrorIs(t, err, domain.ErrAdjustmentReversed)

		e, err := repo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 6, e.AvailableTickets)
	})
}

func TestPostgresEventRepository_ConcurrentReserves(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresEventRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEvent("e1", domain.EventStatusPublished, 5, 5)))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.AdjustTickets(ctx, "e1", 3, fmt.Sprintf("k%d", i)); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	e, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, e.AvailableTickets)
}

func TestPostgresEventRepository_SameKeyConcurrently(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresEventRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEvent("e1", domain.EventStatusPublished, 10, 10)))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AdjustTickets(ctx, "e1", 2, "same-key")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 8, e.AvailableTickets)
}
