package domain

import "time"

// PendingReleaseStatus is the state of a queued release
type PendingReleaseStatus string

const (
	PendingReleasePending PendingReleaseStatus = "pending"
	PendingReleaseDone    PendingReleaseStatus = "done"
	PendingReleaseDead    PendingReleaseStatus = "dead"
)

// PendingRelease is a ticket release that failed and waits for the retry worker.
// IdempotencyKey is reused on every attempt so the inventory applies it once.
// When ReservationKey is set the release undoes that reservation instead of
// applying a new negative delta.
type PendingRelease struct {
	ID             string
	BookingID      string
	EventID        string
	TicketCount    int
	IdempotencyKey string
	ReservationKey string
	Attempts       int
	LastError      string
	Status         PendingReleaseStatus
	NextAttemptAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsReversal reports whether the release undoes a reservation by key
func (p *PendingRelease) IsReversal() bool {
	return p.ReservationKey != ""
}
