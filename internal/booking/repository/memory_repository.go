package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
)

// MemoryBookingRepository is an in-memory BookingRepository for tests and local runs
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	refs     map[string]string
	keys     map[string]string
}

// NewMemoryBookingRepository creates a new in-memory booking repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*domain.Booking),
		refs:     make(map[string]string),
		keys:     make(map[string]string),
	}
}

// Save inserts or CAS-updates a booking
func (r *MemoryBookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if booking.Version == 0 {
		if _, exists := r.refs[booking.Reference]; exists {
			return domain.ErrDuplicateReference
		}
		if booking.IdempotencyKey != "" {
			if _, exists := r.keys[userKey(booking.UserID, booking.IdempotencyKey)]; exists {
				return domain.ErrDuplicateIdempotencyKey
			}
		}
		if booking.CreatedAt.IsZero() {
			booking.CreatedAt = now
		}
		booking.UpdatedAt = now
		booking.Version = 1
		stored := *booking
		r.bookings[booking.ID] = &stored
		r.refs[booking.Reference] = booking.ID
		if booking.IdempotencyKey != "" {
			r.keys[userKey(booking.UserID, booking.IdempotencyKey)] = booking.ID
		}
		return nil
	}

	current, ok := r.bookings[booking.ID]
	if !ok || current.Version != booking.Version {
		return domain.ErrConcurrencyConflict
	}

	booking.Version++
	booking.UpdatedAt = now
	stored := *booking
	stored.Reference = current.Reference
	r.bookings[booking.ID] = &stored
	return nil
}

// GetByID returns a copy of the stored booking
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

// ListByUser returns a page of a user's bookings, newest first
func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*domain.Booking, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*domain.Booking
	for _, b := range r.bookings {
		if b.UserID == userID {
			copied := *b
			all = append(all, &copied)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*domain.Booking{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// ExistsByReference reports whether a reference is taken
func (r *MemoryBookingRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.refs[reference]
	return ok, nil
}

// GetByIdempotencyKey returns the user's booking created under key
func (r *MemoryBookingRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.keys[userKey(userID, key)]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	copied := *r.bookings[id]
	return &copied, nil
}

// ExistsByIdempotencyKey reports whether any user has a booking under key
func (r *MemoryBookingRepository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func userKey(userID, key string) string {
	return userID + "\x00" + key
}

// MemoryPendingReleaseRepository is an in-memory PendingReleaseRepository
type MemoryPendingReleaseRepository struct {
	mu       sync.Mutex
	releases map[string]*domain.PendingRelease
	order    []string
}

// NewMemoryPendingReleaseRepository creates a new in-memory release queue
func NewMemoryPendingReleaseRepository() *MemoryPendingReleaseRepository {
	return &MemoryPendingReleaseRepository{releases: make(map[string]*domain.PendingRelease)}
}

// Enqueue stores a release unless its idempotency key is already queued
func (r *MemoryPendingReleaseRepository) Enqueue(ctx context.Context, release *domain.PendingRelease) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.releases {
		if existing.IdempotencyKey == release.IdempotencyKey {
			return nil
		}
	}

	now := time.Now().UTC()
	if release.NextAttemptAt.IsZero() {
		release.NextAttemptAt = now
	}
	release.Status = domain.PendingReleasePending
	release.CreatedAt = now
	release.UpdatedAt = now

	stored := *release
	r.releases[release.ID] = &stored
	r.order = append(r.order, release.ID)
	return nil
}

// ClaimDue leases due releases
func (r *MemoryPendingReleaseRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.PendingRelease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.PendingRelease
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		p := r.releases[id]
		if p.Status != domain.PendingReleasePending || p.NextAttemptAt.After(now) {
			continue
		}
		p.NextAttemptAt = now.Add(lease)
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

// MarkDone marks a release as applied
func (r *MemoryPendingReleaseRepository) MarkDone(ctx context.Context, id string) error {
	return r.update(id, func(p *domain.PendingRelease) {
		p.Status = domain.PendingReleaseDone
	})
}

// Reschedule records a failed attempt
func (r *MemoryPendingReleaseRepository) Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.update(id, func(p *domain.PendingRelease) {
		p.Attempts = attempts
		p.LastError = lastErr
		p.NextAttemptAt = next
	})
}

// MarkDead gives up on a release
func (r *MemoryPendingReleaseRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(p *domain.PendingRelease) {
		p.Status = domain.PendingReleaseDead
		p.Attempts = attempts
		p.LastError = lastErr
	})
}

// Get returns a copy of a release, for tests and diagnostics
func (r *MemoryPendingReleaseRepository) Get(id string) (*domain.PendingRelease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.releases[id]
	if !ok {
		return nil, false
	}
	copied := *p
	return &copied, true
}

// All returns copies of every queued release in insertion order
func (r *MemoryPendingReleaseRepository) All() []*domain.PendingRelease {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PendingRelease, 0, len(r.order))
	for _, id := range r.order {
		copied := *r.releases[id]
		out = append(out, &copied)
	}
	return out
}

func (r *MemoryPendingReleaseRepository) update(id string, fn func(p *domain.PendingRelease)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.releases[id]
	if !ok || p.Status != domain.PendingReleasePending {
		return domain.ErrPendingReleaseNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}
