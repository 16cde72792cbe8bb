package service

import (
	"context"
	"sync"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/pkg/kafka"
)

// MockInventoryGateway is a mock implementation of gateway.InventoryGateway
type MockInventoryGateway struct {
	GetEventFunc          func(ctx context.Context, eventID string) (*domain.EventSnapshot, error)
	ReserveFunc           func(ctx context.Context, eventID string, count int, key string) error
	ReleaseFunc           func(ctx context.Context, eventID string, count int, key string) error
	CancelReservationFunc func(ctx context.Context, eventID string, key string) error

	mu                    sync.Mutex
	GetEventCalls         int
	ReserveKeys           []string
	ReleaseKeys           []string
	CancelledReservations []string
}

func (m *MockInventoryGateway) GetEvent(ctx context.Context, eventID string) (*domain.EventSnapshot, error) {
	m.mu.Lock()
	m.GetEventCalls++
	m.mu.Unlock()
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockInventoryGateway) Reserve(ctx context.Context, eventID string, count int, key string) error {
	m.mu.Lock()
	m.ReserveKeys = append(m.ReserveKeys, key)
	m.mu.Unlock()
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, eventID, count, key)
	}
	return nil
}

func (m *MockInventoryGateway) Release(ctx context.Context, eventID string, count int, key string) error {
	m.mu.Lock()
	m.ReleaseKeys = append(m.ReleaseKeys, key)
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, eventID, count, key)
	}
	return nil
}

func (m *MockInventoryGateway) CancelReservation(ctx context.Context, eventID string, key string) error {
	m.mu.Lock()
	m.CancelledReservations = append(m.CancelledReservations, key)
	m.mu.Unlock()
	if m.CancelReservationFunc != nil {
		return m.CancelReservationFunc(ctx, eventID, key)
	}
	return nil
}

// RemoteCalls counts every call that reached the inventory
func (m *MockInventoryGateway) RemoteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetEventCalls + len(m.ReserveKeys) + len(m.ReleaseKeys) + len(m.CancelledReservations)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu        sync.Mutex
	Err       error
	Confirmed []*domain.BookingEvent
	Cancelled []*domain.BookingEvent
}

func (m *MockEventPublisher) PublishBookingConfirmed(ctx context.Context, event *domain.BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Confirmed = append(m.Confirmed, event)
	return nil
}

func (m *MockEventPublisher) PublishBookingCancelled(ctx context.Context, event *domain.BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Cancelled = append(m.Cancelled, event)
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

// flakyBookingRepository wraps the in-memory store and lets tests fail Save
type flakyBookingRepository struct {
	*repository.MemoryBookingRepository
	SaveFunc func(ctx context.Context, b *domain.Booking) error
}

func (r *flakyBookingRepository) Save(ctx context.Context, b *domain.Booking) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, b); err != nil {
			return err
		}
	}
	return r.MemoryBookingRepository.Save(ctx, b)
}

// MockProducer records produced Kafka messages
type MockProducer struct {
	mu       sync.Mutex
	Err      error
	Messages []*kafka.Message
	Closed   bool
}

func (m *MockProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockProducer) Close() {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
}
