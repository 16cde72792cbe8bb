package domain

import "time"

// BookingEventType is the value of the event_type message header
type BookingEventType string

const (
	BookingEventConfirmed BookingEventType = "BookingConfirmed"
	BookingEventCancelled BookingEventType = "BookingCancelled"
)

// BookingEvent is the payload published on the booking topic
type BookingEvent struct {
	EventID     string           `json:"eventId"`
	EventType   BookingEventType `json:"eventType"`
	BookingID   string           `json:"bookingId"`
	UserID      string           `json:"userId"`
	Email       string           `json:"email,omitempty"`
	EventTitle  string           `json:"eventTitle,omitempty"`
	TicketCount int              `json:"ticketCount"`
	TotalPrice  Money            `json:"totalPrice"`
	Reference   string           `json:"reference"`
	EventDate   *time.Time       `json:"eventDate,omitempty"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

// NewBookingEvent builds an event from a booking and an optional snapshot
func NewBookingEvent(eventType BookingEventType, eventID string, b *Booking, email string, snap *EventSnapshot) *BookingEvent {
	evt := &BookingEvent{
		EventID:     eventID,
		EventType:   eventType,
		BookingID:   b.ID,
		UserID:      b.UserID,
		Email:       email,
		TicketCount: b.TicketCount,
		TotalPrice:  b.TotalPrice,
		Reference:   b.Reference,
		OccurredAt:  time.Now().UTC(),
	}
	if snap != nil {
		evt.EventTitle = snap.Title
		if !snap.StartDateTime.IsZero() {
			d := snap.StartDateTime
			evt.EventDate = &d
		}
	}
	return evt
}

// Key returns the partition key
func (e *BookingEvent) Key() string {
	return e.BookingID
}
