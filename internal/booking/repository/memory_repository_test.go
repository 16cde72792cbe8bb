package repository

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(id, userID, ref string) *domain.Booking {
	return &domain.Booking{
		ID:          id,
		UserID:      userID,
		EventID:     "event-1",
		TicketCount: 2,
		TotalPrice:  domain.NewMoney(200, 0),
		Status:      domain.BookingStatusConfirmed,
		Reference:   ref,
	}
}

func TestMemoryBookingRepository_SaveInsertsThenCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	b := newBooking("b1", "u1", "BOOK-00000001")
	require.NoError(t, repo.Save(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	// Two readers race on the same version
	first, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, first.Cancel(time.Now()))
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = domain.BookingStatusCancelled
	assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrConcurrencyConflict)

	stored, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestMemoryBookingRepository_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	require.NoError(t, repo.Save(ctx, newBooking("b1", "u1", "BOOK-AAAAAAAA")))
	err := repo.Save(ctx, newBooking("b2", "u1", "BOOK-AAAAAAAA"))
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)

	exists, err := repo.ExistsByReference(ctx, "BOOK-AAAAAAAA")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryBookingRepository_IdempotencyKeyPerUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	first := newBooking("b1", "u1", "BOOK-00000011")
	first.IdempotencyKey = "key-1"
	require.NoError(t, repo.Save(ctx, first))

	twin := newBooking("b2", "u1", "BOOK-00000012")
	twin.IdempotencyKey = "key-1"
	assert.ErrorIs(t, repo.Save(ctx, twin), domain.ErrDuplicateIdempotencyKey)

	other := newBooking("b3", "u2", "BOOK-00000013")
	other.IdempotencyKey = "key-1"
	require.NoError(t, repo.Save(ctx, other))

	// Bookings without a key never collide
	require.NoError(t, repo.Save(ctx, newBooking("b4", "u1", "BOOK-00000014")))
	require.NoError(t, repo.Save(ctx, newBooking("b5", "u1", "BOOK-00000015")))

	got, err := repo.GetByIdempotencyKey(ctx, "u1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)

	_, err = repo.GetByIdempotencyKey(ctx, "u3", "key-1")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	exists, err := repo.ExistsByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByIdempotencyKey(ctx, "key-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryBookingRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	require.NoError(t, repo.Save(ctx, newBooking("b1", "u1", "BOOK-1")))

	got, _ := repo.GetByID(ctx, "b1")
	got.Status = domain.BookingStatusFailed

	again, _ := repo.GetByID(ctx, "b1")
	assert.Equal(t, domain.BookingStatusConfirmed, again.Status)

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestMemoryBookingRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"b1", "b2", "b3"} {
		b := newBooking(id, "u1", "BOOK-"+id)
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Save(ctx, b))
	}
	require.NoError(t, repo.Save(ctx, newBooking("other", "u2", "BOOK-other")))

	page, total, err := repo.ListByUser(ctx, "u1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "b3", page[0].ID)
	assert.Equal(t, "b2", page[1].ID)

	page, _, err = repo.ListByUser(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b1", page[0].ID)

	page, _, err = repo.ListByUser(ctx, "u1", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryPendingReleaseRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPendingReleaseRepository()
	now := time.Now()

	require.NoError(t, repo.Enqueue(ctx, &domain.PendingRelease{ID: "r1", BookingID: "b1", EventID: "e1", TicketCount: 2, IdempotencyKey: "release:b1"}))
	// Same key is ignored
	require.NoError(t, repo.Enqueue(ctx, &domain.PendingRelease{ID: "r2", BookingID: "b1", EventID: "e1", TicketCount: 2, IdempotencyKey: "release:b1"}))
	assert.Len(t, repo.All(), 1)

	claimed, err := repo.ClaimDue(ctx, now.Add(time.Second), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Leased rows are not handed out twice
	again, err := repo.ClaimDue(ctx, now.Add(2*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, repo.Reschedule(ctx, "r1", 1, "boom", now))
	claimed, err = repo.ClaimDue(ctx, now.Add(time.Second), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	require.NoError(t, repo.MarkDone(ctx, "r1"))
	got, ok := repo.Get("r1")
	require.True(t, ok)
	assert.Equal(t, domain.PendingReleaseDone, got.Status)

	assert.ErrorIs(t, repo.MarkDead(ctx, "r1", 2, "late"), domain.ErrPendingReleaseNotFound)
}
