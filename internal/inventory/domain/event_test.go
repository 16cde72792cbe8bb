package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishedEvent(available int) *Event {
	return &Event{
		ID:               "e1",
		Title:            "Concert",
		Status:           EventStatusPublished,
		PriceCents:       10000,
		Capacity:         10,
		AvailableTickets: available,
		StartDateTime:    time.Now().Add(24 * time.Hour),
	}
}

func TestNewEvent(t *testing.T) {
	start := time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC)

	e, err := NewEvent("e1", "  Concert ", EventStatusPublished, 2550, 100, start)
	require.NoError(t, err)
	assert.Equal(t, "Concert", e.Title)
	assert.Equal(t, 100, e.AvailableTickets)
	assert.Equal(t, "25.50", e.FormatPrice())

	tests := []struct {
		name     string
		title    string
		status   EventStatus
		price    int64
		capacity int
		start    time.Time
		wantErr  error
	}{
		{"blank title", " ", EventStatusDraft, 100, 10, start, ErrInvalidTitle},
		{"zero capacity", "x", EventStatusDraft, 100, 0, start, ErrInvalidCapacity},
		{"negative price", "x", EventStatusDraft, -1, 10, start, ErrInvalidPrice},
		{"no start", "x", EventStatusDraft, 100, 10, time.Time{}, ErrInvalidStartDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvent("e1", tt.title, tt.status, tt.price, tt.capacity, tt.start)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}

	_, err = NewEvent("e1", "x", EventStatus("OPEN"), 100, 10, start)
	assert.Error(t, err)
}

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		name      string
		status    EventStatus
		available int
		delta     int
		want      int
		wantErr   error
	}{
		{"reserve", EventStatusPublished, 5, 3, 2, nil},
		{"reserve all", EventStatusPublished, 5, 5, 0, nil},
		{"insufficient", EventStatusPublished, 2, 3, 2, ErrInsufficientTickets},
		{"draft", EventStatusDraft, 5, 1, 5, ErrEventNotPublished},
		{"release", EventStatusPublished, 5, -3, 8, nil},
		{"release clamps", EventStatusPublished, 9, -3, 10, nil},
		{"release on cancelled event", EventStatusCancelled, 5, -2, 7, nil},
		{"zero", EventStatusPublished, 5, 0, 5, ErrInvalidDelta},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := publishedEvent(tt.available)
			e.Status = tt.status
			err := e.ApplyDelta(tt.delta)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, e.AvailableTickets)
		})
	}
}

func TestRevert(t *testing.T) {
	e := publishedEvent(2)
	e.Revert(3)
	assert.Equal(t, 5, e.AvailableTickets)

	e.Revert(20)
	assert.Equal(t, 10, e.AvailableTickets)

	e.Revert(-30)
	assert.Equal(t, 0, e.AvailableTickets)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100", 10000, false},
		{"100.5", 10050, false},
		{"0.05", 5, false},
		{" 12.34 ", 1234, false},
		{"1.234", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{".50", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPrice, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
