package domain

import "time"

// AdjustmentState is what an idempotency key currently stands for
type AdjustmentState string

const (
	// AdjustmentApplied holds stock
	AdjustmentApplied AdjustmentState = "applied"
	// AdjustmentUndone was applied and reversed; the key may be applied again
	AdjustmentUndone AdjustmentState = "undone"
	// AdjustmentTombstone was reversed before it was ever applied; the key is refused for good
	AdjustmentTombstone AdjustmentState = "tombstone"
)

// TicketAdjustment is one change to an event's stock, keyed by the caller's idempotency key
type TicketAdjustment struct {
	IdempotencyKey string
	EventID        string
	Delta          int
	State          AdjustmentState
	CreatedAt      time.Time
}

// CheckReplay reports whether a repeated request under the same key may be
// answered as a duplicate. It is only meaningful for applied and tombstoned keys.
func (a TicketAdjustment) CheckReplay(eventID string, delta int) error {
	if a.State == AdjustmentTombstone {
		return ErrAdjustmentReversed
	}
	if a.EventID != eventID || a.Delta != delta {
		return ErrIdempotencyKeyConflict
	}
	return nil
}

// AdjustResult is the outcome of an adjustment request
type AdjustResult struct {
	Event *Event
	// Duplicate is set when the key had already been applied and nothing changed
	Duplicate bool
}
