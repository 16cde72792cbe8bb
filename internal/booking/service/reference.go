package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
)

const (
	referencePrefix          = "BOOK-"
	defaultReferenceAttempts = 10
)

// ReferenceChecker reports whether a reference is already taken
type ReferenceChecker interface {
	ExistsByReference(ctx context.Context, reference string) (bool, error)
}

// ReferenceAllocator hands out human-readable booking references
type ReferenceAllocator struct {
	checker     ReferenceChecker
	newID       func() uuid.UUID
	maxAttempts int
}

// NewReferenceAllocator creates an allocator backed by checker.
// newID may be nil, in which case random v4 UUIDs are used.
func NewReferenceAllocator(checker ReferenceChecker, newID func() uuid.UUID) *ReferenceAllocator {
	if newID == nil {
		newID = uuid.New
	}
	return &ReferenceAllocator{
		checker:     checker,
		newID:       newID,
		maxAttempts: defaultReferenceAttempts,
	}
}

// Generate returns an unused reference of the form BOOK-XXXXXXXX
func (a *ReferenceAllocator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		ref := FormatReference(a.newID())
		exists, err := a.checker.ExistsByReference(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("failed to check reference: %w", err)
		}
		if !exists {
			return ref, nil
		}
	}
	return "", domain.ErrReferenceExhausted
}

// FormatReference builds a reference from the first 8 hex digits of id
func FormatReference(id uuid.UUID) string {
	return referencePrefix + strings.ToUpper(id.String()[:8])
}
