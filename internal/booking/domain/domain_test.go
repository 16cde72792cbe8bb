package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_JSON(t *testing.T) {
	tests := []struct {
		money Money
		want  string
	}{
		{NewMoney(200, 0), "200.00"},
		{NewMoney(99, 5), "99.05"},
		{Money(1), "0.01"},
		{Money(-250), "-2.50"},
		{Money(0), "0.00"},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.money)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{"100", 10000, false},
		{"100.5", 10050, false},
		{"100.50", 10050, false},
		{"0.07", 7, false},
		{"-1.25", -125, false},
		{"1.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_UnmarshalInStruct(t *testing.T) {
	var snap EventSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"id":"e1","price":100.00,"status":"PUBLISHED","availableTickets":5}`), &snap))
	assert.Equal(t, NewMoney(100, 0), snap.Price)
	assert.Equal(t, NewMoney(200, 0), snap.Price.Mul(2))
}

func TestValidateTicketCount(t *testing.T) {
	for n := -1; n <= 12; n++ {
		err := ValidateTicketCount(n)
		if n >= 1 && n <= 10 {
			assert.NoError(t, err, "n=%d", n)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTicketCount, "n=%d", n)
		}
	}
}

func TestEventSnapshot_CheckBookable(t *testing.T) {
	base := EventSnapshot{Status: EventStatusPublished, Price: NewMoney(10, 0), AvailableTickets: 5}

	tests := []struct {
		name   string
		mutate func(e *EventSnapshot)
		count  int
		want   error
	}{
		{"ok", func(e *EventSnapshot) {}, 5, nil},
		{"draft", func(e *EventSnapshot) { e.Status = EventStatusDraft }, 1, ErrEventNotPublished},
		{"cancelled", func(e *EventSnapshot) { e.Status = EventStatusCancelled }, 1, ErrEventNotPublished},
		{"not enough", func(e *EventSnapshot) {}, 6, ErrInsufficientTickets},
		{"free event", func(e *EventSnapshot) { e.Price = 0 }, 1, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			err := e.CheckBookable(tt.count)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestBooking_Cancel(t *testing.T) {
	for _, status := range []BookingStatus{BookingStatusPending, BookingStatusFailed, BookingStatusCancelled} {
		b := &Booking{Status: status}
		assert.ErrorIs(t, b.Cancel(time.Now()), ErrNotCancellable, string(status))
		assert.Equal(t, status, b.Status)
	}

	b := &Booking{Status: BookingStatusConfirmed}
	require.NoError(t, b.Cancel(time.Now()))
	assert.Equal(t, BookingStatusCancelled, b.Status)
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("reserve: %w", ErrInsufficientTickets)
	assert.True(t, IsConflictError(wrapped))
	assert.False(t, IsNotFoundError(wrapped))
	assert.True(t, IsNotFoundError(ErrEventNotFound))
	assert.True(t, IsValidationError(ErrInvalidTicketCount))
	assert.False(t, IsValidationError(errors.New("other")))
}

func TestNewBookingEvent(t *testing.T) {
	start := time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC)
	b := &Booking{ID: "b1", UserID: "u1", TicketCount: 2, TotalPrice: NewMoney(200, 0), Reference: "BOOK-ABCDEF12"}

	evt := NewBookingEvent(BookingEventConfirmed, "evt-1", b, "u1@example.com", &EventSnapshot{Title: "Concert", StartDateTime: start})
	assert.Equal(t, "b1", evt.Key())
	assert.Equal(t, "Concert", evt.EventTitle)
	require.NotNil(t, evt.EventDate)
	assert.True(t, evt.EventDate.Equal(start))

	noSnap := NewBookingEvent(BookingEventCancelled, "evt-2", b, "", nil)
	assert.Empty(t, noSnap.EventTitle)
	assert.Nil(t, noSnap.EventDate)

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"totalPrice":200.00`)
}
