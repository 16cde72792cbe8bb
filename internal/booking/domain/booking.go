package domain

import (
	"time"
)

// Ticket limits per booking
const (
	MinTicketsPerBooking = 1
	MaxTicketsPerBooking = 10
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusFailed    BookingStatus = "FAILED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// IsValid checks if the booking status is valid
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusFailed, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is the booking aggregate.
// Version is 0 until the first Save and increases by one on every update.
type Booking struct {
	ID             string
	UserID         string
	EventID        string
	TicketCount    int
	TotalPrice     Money
	Status         BookingStatus
	Reference      string
	IdempotencyKey string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidateTicketCount checks the per-booking ticket limits
func ValidateTicketCount(n int) error {
	if n < MinTicketsPerBooking || n > MaxTicketsPerBooking {
		return ErrInvalidTicketCount
	}
	return nil
}

// IsOwnedBy reports whether userID owns the booking
func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// CanCancel reports whether the booking may move to CANCELLED
func (b *Booking) CanCancel() bool {
	return b.Status == BookingStatusConfirmed
}

// Cancel moves a confirmed booking to CANCELLED
func (b *Booking) Cancel(now time.Time) error {
	if !b.CanCancel() {
		return ErrNotCancellable
	}
	b.Status = BookingStatusCancelled
	b.UpdatedAt = now
	return nil
}
