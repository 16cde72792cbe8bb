package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
)

// BookingRepository persists the booking aggregate with optimistic concurrency
type BookingRepository interface {
	// Save inserts a booking with Version 0 and sets Version to 1. Otherwise it updates
	// the row only if the stored version still equals booking.Version, then increments it.
	// A lost race returns domain.ErrConcurrencyConflict. Inserting a second booking for the
	// same user and idempotency key returns domain.ErrDuplicateIdempotencyKey.
	Save(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by its ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// ListByUser returns a user's bookings newest first, plus the total count
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*domain.Booking, int64, error)

	// ExistsByReference reports whether a reference is already taken
	ExistsByReference(ctx context.Context, reference string) (bool, error)

	// GetByIdempotencyKey returns the user's booking created under key, or domain.ErrBookingNotFound
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Booking, error)

	// ExistsByIdempotencyKey reports whether any booking was created under key
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// PendingReleaseRepository is the durable queue of releases awaiting retry
type PendingReleaseRepository interface {
	// Enqueue stores a release. A second release with the same idempotency key is ignored.
	Enqueue(ctx context.Context, release *domain.PendingRelease) error

	// ClaimDue returns up to limit due releases and pushes their next attempt out by lease,
	// so concurrent workers do not pick the same rows
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.PendingRelease, error)

	// MarkDone marks a release as applied
	MarkDone(ctx context.Context, id string) error

	// Reschedule records a failed attempt and the time of the next one
	Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error

	// MarkDead gives up on a release
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error
}
