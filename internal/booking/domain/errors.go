package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound     = errors.New("booking not found")
	ErrNotCancellable      = errors.New("booking cannot be cancelled in its current status")
	ErrConcurrencyConflict = errors.New("booking was modified concurrently")
	ErrReferenceExhausted  = errors.New("could not allocate a unique booking reference")
	ErrDuplicateReference  = errors.New("booking reference already exists")
	ErrUnauthorized        = errors.New("booking does not belong to this user")

	// Idempotency errors
	ErrIdempotencyKeyReused    = errors.New("idempotency key was already used for a different booking request")
	ErrDuplicateIdempotencyKey = errors.New("a booking already exists for this idempotency key")

	// Validation errors
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidEventID     = errors.New("invalid event id")
	ErrInvalidTicketCount = errors.New("ticket count must be between 1 and 10")
	ErrInvalidPrice       = errors.New("event price must be greater than zero")

	// Event / inventory errors
	ErrEventNotFound       = errors.New("event not found")
	ErrEventNotPublished   = errors.New("event is not open for booking")
	ErrInsufficientTickets = errors.New("not enough tickets available")
	ErrUpstreamUnavailable = errors.New("inventory service unavailable, try again")

	// Release queue errors
	ErrPendingReleaseNotFound = errors.New("pending release not found")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidTicketCount) ||
		errors.Is(err, ErrInvalidPrice)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientTickets) ||
		errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrNotCancellable)
}
