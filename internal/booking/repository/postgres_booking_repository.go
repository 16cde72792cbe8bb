package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bookingColumns = `
	id, user_id, event_id, ticket_count, total_price_cents, status,
	reference, idempotency_key, version, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Save inserts or CAS-updates a booking
func (r *PostgresBookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	if booking.Version == 0 {
		return r.insert(ctx, booking)
	}
	return r.update(ctx, booking)
}

func (r *PostgresBookingRepository) insert(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("event_id", booking.EventID),
	)

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.EventID,
		booking.TicketCount,
		booking.TotalPrice.Cents(),
		booking.Status.String(),
		booking.Reference,
		nullString(booking.IdempotencyKey),
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if database.IsUniqueViolation(err, "bookings_reference_key") {
			return fmt.Errorf("failed to create booking: %w", domain.ErrDuplicateReference)
		}
		if database.IsUniqueViolation(err, "bookings_user_idempotency_key") {
			return fmt.Errorf("failed to create booking: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.Version = 1
	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *PostgresBookingRepository) update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.Int64("expected_version", booking.Version),
	)

	query := `
		UPDATE bookings
		SET status = $3, ticket_count = $4, total_price_cents = $5,
			version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
	`

	updatedAt := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.Version,
		booking.Status.String(),
		booking.TicketCount,
		booking.TotalPrice.Cents(),
		updatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "version conflict")
		return domain.ErrConcurrencyConflict
	}

	booking.Version++
	booking.UpdatedAt = updatedAt
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListByUser returns a page of a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*domain.Booking, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("offset", offset),
		attribute.Int("limit", limit),
	)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0, limit)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

// ExistsByReference reports whether a reference is taken
func (r *PostgresBookingRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE reference = $1)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return exists, nil
}

// GetByIdempotencyKey returns the user's booking created under key
func (r *PostgresBookingRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_idempotency_key")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND idempotency_key = $2`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by idempotency key: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ExistsByIdempotencyKey reports whether any booking holds key
func (r *PostgresBookingRepository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE idempotency_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b              domain.Booking
		status         string
		priceCents     int64
		idempotencyKey *string
	)

	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.EventID,
		&b.TicketCount,
		&priceCents,
		&status,
		&b.Reference,
		&idempotencyKey,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	b.TotalPrice = domain.Money(priceCents)
	if idempotencyKey != nil {
		b.IdempotencyKey = *idempotencyKey
	}
	return &b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
