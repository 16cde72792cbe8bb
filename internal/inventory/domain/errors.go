package domain

import "errors"

// Domain errors
var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventNotPublished   = errors.New("event is not open for booking")
	ErrInsufficientTickets = errors.New("not enough tickets available")

	// Idempotency errors
	ErrIdempotencyKeyConflict = errors.New("idempotency key was already used for a different adjustment")
	ErrAdjustmentReversed     = errors.New("adjustment under this idempotency key was reversed")

	// Validation errors
	ErrInvalidDelta          = errors.New("delta must be a non-zero number of tickets")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrInvalidTitle          = errors.New("title is required")
	ErrInvalidCapacity       = errors.New("capacity must be positive")
	ErrInvalidPrice          = errors.New("price must not be negative")
	ErrInvalidStartDate      = errors.New("start date is required")
)

// IsIdempotencyError checks if a key was reused for something else
func IsIdempotencyError(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyConflict) ||
		errors.Is(err, ErrAdjustmentReversed)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDelta) ||
		errors.Is(err, ErrMissingIdempotencyKey) ||
		errors.Is(err, ErrInvalidTitle) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidStartDate)
}
