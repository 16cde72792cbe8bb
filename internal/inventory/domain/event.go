package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

// IsValid reports whether s is a known status
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusCancelled, EventStatusCompleted:
		return true
	}
	return false
}

// Event is a bookable event and its ticket stock
type Event struct {
	ID               string
	Title            string
	Status           EventStatus
	PriceCents       int64
	Capacity         int
	AvailableTickets int
	StartDateTime    time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewEvent builds an event with all tickets available
func NewEvent(id, title string, status EventStatus, priceCents int64, capacity int, start time.Time) (*Event, error) {
	e := &Event{
		ID:               id,
		Title:            strings.TrimSpace(title),
		Status:           status,
		PriceCents:       priceCents,
		Capacity:         capacity,
		AvailableTickets: capacity,
		StartDateTime:    start.UTC(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the event's invariants
func (e *Event) Validate() error {
	if e.Title == "" {
		return ErrInvalidTitle
	}
	if e.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if e.PriceCents < 0 {
		return ErrInvalidPrice
	}
	if e.StartDateTime.IsZero() {
		return ErrInvalidStartDate
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("unknown event status %q", e.Status)
	}
	return nil
}

// ApplyDelta takes delta tickets (positive) or gives -delta back (negative).
// Taking requires a published event with enough stock; giving back is capped at capacity.
func (e *Event) ApplyDelta(delta int) error {
	if delta == 0 {
		return ErrInvalidDelta
	}
	if delta > 0 {
		if e.Status != EventStatusPublished {
			return ErrEventNotPublished
		}
		if e.AvailableTickets < delta {
			return ErrInsufficientTickets
		}
		e.AvailableTickets -= delta
		return nil
	}
	e.AvailableTickets = min(e.Capacity, e.AvailableTickets-delta)
	return nil
}

// Revert undoes a previously applied delta, keeping stock within [0, capacity]
func (e *Event) Revert(delta int) {
	e.AvailableTickets = max(0, min(e.Capacity, e.AvailableTickets+delta))
}

// FormatPrice renders the price with two decimals
func (e *Event) FormatPrice() string {
	return fmt.Sprintf("%d.%02d", e.PriceCents/100, e.PriceCents%100)
}

// ParsePrice parses "100", "100.5" or "100.50" into cents
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 || strings.HasPrefix(whole, "-") {
		return 0, ErrInvalidPrice
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidPrice
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, ErrInvalidPrice
	}
	return units*100 + cents, nil
}
