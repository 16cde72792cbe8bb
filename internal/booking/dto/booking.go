package dto

import (
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
)

// Paging defaults for ListMyBookings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateBookingRequest represents a request to book tickets
type CreateBookingRequest struct {
	EventID     string `json:"eventId" binding:"required"`
	TicketCount int    `json:"ticketCount"`
	// IdempotencyKey is taken from the X-Idempotency-Key header, never from the body
	IdempotencyKey string `json:"-"`
	// Email is the caller's address as forwarded by the gateway, used for notifications
	Email string `json:"-"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID          string       `json:"id"`
	Reference   string       `json:"reference"`
	UserID      string       `json:"userId"`
	EventID     string       `json:"eventId"`
	TicketCount int          `json:"ticketCount"`
	TotalPrice  domain.Money `json:"totalPrice"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PagedResponse is a page of bookings, newest first
type PagedResponse struct {
	Content       []*BookingResponse `json:"content"`
	Page          int                `json:"page"`
	Size          int                `json:"size"`
	TotalElements int64              `json:"totalElements"`
	TotalPages    int                `json:"totalPages"`
	Last          bool               `json:"last"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:          b.ID,
		Reference:   b.Reference,
		UserID:      b.UserID,
		EventID:     b.EventID,
		TicketCount: b.TicketCount,
		TotalPrice:  b.TotalPrice,
		Status:      b.Status.String(),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// NormalizePage clamps page and size to the accepted range
func NormalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// NewPagedResponse builds the page envelope
func NewPagedResponse(bookings []*domain.Booking, page, size int, total int64) *PagedResponse {
	content := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		content = append(content, FromDomain(b))
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &PagedResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          page >= totalPages-1,
	}
}
