package repository

import (
	"context"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
)

// EventRepository stores events and applies idempotent stock adjustments
type EventRepository interface {
	// Create inserts a new event
	Create(ctx context.Context, event *domain.Event) error

	// GetByID returns domain.ErrEventNotFound when the event does not exist
	GetByID(ctx context.Context, id string) (*domain.Event, error)

	// AdjustTickets applies delta once per idempotency key. Replaying a key with the same
	// event and delta returns the current event with Duplicate set and changes nothing.
	// Replaying it with another event or delta returns domain.ErrIdempotencyKeyConflict,
	// and a tombstoned key returns domain.ErrAdjustmentReversed.
	AdjustTickets(ctx context.Context, id string, delta int, idempotencyKey string) (*domain.AdjustResult, error)

	// ReverseAdjustment undoes the adjustment recorded under key and forgets the key,
	// so the same key can be applied again later. Reversing a key that was never applied
	// changes no stock but tombstones the key, so a late adjustment under it is refused.
	ReverseAdjustment(ctx context.Context, id string, idempotencyKey string) (*domain.AdjustResult, error)
}
