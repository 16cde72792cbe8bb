package service

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/dto"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	inventoryhandler "github.com/prohmpiriya/event-booking-saga/internal/inventory/handler"
	inventoryrepo "github.com/prohmpiriya/event-booking-saga/internal/inventory/repository"
	inventoryservice "github.com/prohmpiriya/event-booking-saga/internal/inventory/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inventoryFlow struct {
	svc    BookingService
	stock  *inventoryrepo.MemoryEventRepository
	events []string
}

// newInventoryFlow runs the booking service against a real inventory service over HTTP
func newInventoryFlow(t *testing.T, capacities ...int) *inventoryFlow {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stock := inventoryrepo.NewMemoryEventRepository()
	inventory := inventoryservice.NewInventoryService(stock)
	flow := &inventoryFlow{stock: stock}
	for _, capacity := range capacities {
		e, err := inventory.CreateEvent(context.Background(), &inventoryservice.CreateEventInput{
			Title:         "Concert",
			Price:         "50",
			Capacity:      capacity,
			StartDateTime: time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		flow.events = append(flow.events, e.ID)
	}

	router := gin.New()
	inventoryhandler.NewEventHandler(inventory).RegisterRoutes(router.Group("/api/v1"), "flow-secret")
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	gw := gateway.NewHTTPInventoryGateway(&gateway.HTTPInventoryGatewayConfig{
		BaseURL:        server.URL,
		InternalSecret: "flow-secret",
		Timeout:        2 * time.Second,
	})
	flow.svc = NewBookingService(
		repository.NewMemoryBookingRepository(),
		repository.NewMemoryPendingReleaseRepository(),
		gw, nil, &MockEventPublisher{},
		&BookingServiceConfig{PersistTimeout: time.Second, BackgroundTimeout: time.Second},
	)
	t.Cleanup(flow.svc.Wait)
	return flow
}

func (f *inventoryFlow) available(t *testing.T, eventID string) int {
	t.Helper()
	e, err := f.stock.GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return e.AvailableTickets
}

func TestInventoryFlow_SharedClientKeyAcrossUsers(t *testing.T) {
	flow := newInventoryFlow(t, 10, 10)
	ctx := context.Background()
	first, second := flow.events[0], flow.events[1]

	alice, err := flow.svc.CreateBooking(ctx, "alice", &dto.CreateBookingRequest{EventID: first, TicketCount: 2, IdempotencyKey: "shared"})
	require.NoError(t, err)
	bob, err := flow.svc.CreateBooking(ctx, "bob", &dto.CreateBookingRequest{EventID: second, TicketCount: 3, IdempotencyKey: "shared"})
	require.NoError(t, err)

	assert.NotEqual(t, alice.ID, bob.ID)
	assert.Equal(t, 8, flow.available(t, first))
	assert.Equal(t, 7, flow.available(t, second), "bob's booking holds real tickets")
}

func TestInventoryFlow_ReplayTakesStockOnce(t *testing.T) {
	flow := newInventoryFlow(t, 10)
	ctx := context.Background()
	eventID := flow.events[0]
	req := &dto.CreateBookingRequest{EventID: eventID, TicketCount: 4, IdempotencyKey: "retry-me"}

	first, err := flow.svc.CreateBooking(ctx, "alice", req)
	require.NoError(t, err)
	again, err := flow.svc.CreateBooking(ctx, "alice", req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 6, flow.available(t, eventID))

	// Cancelling gives the tickets back exactly once
	_, err = flow.svc.DeleteBooking(ctx, first.ID, "alice", "")
	require.NoError(t, err)
	flow.svc.Wait()
	assert.Equal(t, 10, flow.available(t, eventID))
}
