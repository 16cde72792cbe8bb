package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEvent_PriceHasTwoDecimals(t *testing.T) {
	e := &domain.Event{
		ID:               "e1",
		Title:            "Concert",
		Status:           domain.EventStatusPublished,
		PriceCents:       10005,
		Capacity:         100,
		AvailableTickets: 40,
		StartDateTime:    time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(FromEvent(e))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"price":100.05`)
	assert.Contains(t, string(data), `"availableTickets":40`)
	assert.Contains(t, string(data), `"status":"PUBLISHED"`)
}
