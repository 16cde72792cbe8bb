package dto

import (
	"encoding/json"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
)

// EventResponse is the public view of an event. Price is a JSON number with two decimals.
type EventResponse struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Status           string      `json:"status"`
	Price            json.Number `json:"price"`
	Capacity         int         `json:"capacity"`
	AvailableTickets int         `json:"availableTickets"`
	StartDateTime    time.Time   `json:"startDateTime"`
}

// FromEvent converts a domain event to its response
func FromEvent(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:               e.ID,
		Title:            e.Title,
		Status:           string(e.Status),
		Price:            json.Number(e.FormatPrice()),
		Capacity:         e.Capacity,
		AvailableTickets: e.AvailableTickets,
		StartDateTime:    e.StartDateTime,
	}
}

// AdjustTicketsRequest is the body of PATCH /events/{id}/tickets.
// A positive delta reserves, a negative one releases. Reverses names an
// earlier adjustment to undo, in which case delta is ignored.
type AdjustTicketsRequest struct {
	Delta    int    `json:"delta"`
	Reverses string `json:"reverses,omitempty" binding:"omitempty,max=128"`
}
