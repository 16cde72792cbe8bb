package domain

import "time"

// EventStatus mirrors the inventory service's event lifecycle
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

// EventSnapshot is a read-only view of an event as seen at booking time
type EventSnapshot struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Status           EventStatus `json:"status"`
	Price            Money       `json:"price"`
	AvailableTickets int         `json:"availableTickets"`
	StartDateTime    time.Time   `json:"startDateTime"`
}

// CheckBookable applies the business rules for booking count tickets of this event
func (e *EventSnapshot) CheckBookable(count int) error {
	if e.Status != EventStatusPublished {
		return ErrEventNotPublished
	}
	if e.AvailableTickets < count {
		return ErrInsufficientTickets
	}
	if !e.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}
