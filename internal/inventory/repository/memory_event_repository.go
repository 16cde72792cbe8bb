package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
)

// MemoryEventRepository is an in-process EventRepository for tests and local runs.
// One mutex serializes every adjustment, matching the row lock in Postgres.
type MemoryEventRepository struct {
	mu          sync.Mutex
	events      map[string]*domain.Event
	adjustments map[string]domain.TicketAdjustment
}

// NewMemoryEventRepository creates a new in-memory event repository
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events:      make(map[string]*domain.Event),
		adjustments: make(map[string]domain.TicketAdjustment),
	}
}

// Create stores a copy of the event
func (r *MemoryEventRepository) Create(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.ID]; exists {
		return fmt.Errorf("failed to create event: %s already exists", event.ID)
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1

	stored := *event
	r.events[event.ID] = &stored
	return nil
}

// GetByID returns a copy of the event
func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	copied := *e
	return &copied, nil
}

// AdjustTickets applies delta once per key
func (r *MemoryEventRepository) AdjustTickets(ctx context.Context, id string, delta int, idempotencyKey string) (*domain.AdjustResult, error) {
	if delta == 0 {
		return nil, domain.ErrInvalidDelta
	}
	if idempotencyKey == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	if adj, seen := r.adjustments[idempotencyKey]; seen && adj.State != domain.AdjustmentUndone {
		if err := adj.CheckReplay(id, delta); err != nil {
			return nil, err
		}
		copied := *e
		return &domain.AdjustResult{Event: &copied, Duplicate: true}, nil
	}

	next := *e
	if err := next.ApplyDelta(delta); err != nil {
		return nil, err
	}
	r.commit(&next)
	r.adjustments[idempotencyKey] = domain.TicketAdjustment{
		IdempotencyKey: idempotencyKey,
		EventID:        id,
		Delta:          delta,
		State:          domain.AdjustmentApplied,
		CreatedAt:      next.UpdatedAt,
	}

	copied := next
	return &domain.AdjustResult{Event: &copied}, nil
}

// ReverseAdjustment undoes the adjustment under key, or tombstones a key never applied
func (r *MemoryEventRepository) ReverseAdjustment(ctx context.Context, id string, idempotencyKey string) (*domain.AdjustResult, error) {
	if idempotencyKey == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	adj, seen := r.adjustments[idempotencyKey]
	if !seen {
		r.adjustments[idempotencyKey] = domain.TicketAdjustment{
			IdempotencyKey: idempotencyKey,
			EventID:        id,
			State:          domain.AdjustmentTombstone,
			CreatedAt:      time.Now().UTC(),
		}
	}
	if !seen || adj.State != domain.AdjustmentApplied || adj.EventID != id {
		copied := *e
		return &domain.AdjustResult{Event: &copied, Duplicate: true}, nil
	}

	next := *e
	next.Revert(adj.Delta)
	r.commit(&next)
	adj.State = domain.AdjustmentUndone
	r.adjustments[idempotencyKey] = adj

	copied := next
	return &domain.AdjustResult{Event: &copied}, nil
}

// HasAdjustment reports whether key currently holds applied stock
func (r *MemoryEventRepository) HasAdjustment(idempotencyKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	adj, ok := r.adjustments[idempotencyKey]
	return ok && adj.State == domain.AdjustmentApplied
}

func (r *MemoryEventRepository) commit(e *domain.Event) {
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	stored := *e
	r.events[e.ID] = &stored
}
