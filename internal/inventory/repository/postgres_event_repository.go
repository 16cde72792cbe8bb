package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const eventColumns = `
	id, title, status, price_cents, capacity, available_tickets,
	start_date_time, version, created_at, updated_at`

// PostgresEventRepository implements EventRepository using PostgreSQL with pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e      domain.Event
		status string
	)
	err := row.Scan(
		&e.ID,
		&e.Title,
		&status,
		&e.PriceCents,
		&e.Capacity,
		&e.AvailableTickets,
		&e.StartDateTime,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EventStatus(status)
	return &e, nil
}

// Create inserts a new event
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", event.ID))

	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Title,
		string(event.Status),
		event.PriceCents,
		event.Capacity,
		event.AvailableTickets,
		event.StartDateTime,
		event.Version,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("failed to create event: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an event by ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	event, err := getEvent(ctx, r.pool, id)
	if err != nil {
		if !errors.Is(err, domain.ErrEventNotFound) {
			return nil, fail(span, err)
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return event, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEvent(ctx context.Context, q querier, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event, err := scanEvent(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// AdjustTickets records the key and moves the stock in one transaction. The
// key insert blocks on a concurrent request holding the same key, so exactly
// one of them applies the delta. An undone key is applied again in place.
func (r *PostgresEventRepository) AdjustTickets(ctx context.Context, id string, delta int, idempotencyKey string) (*domain.AdjustResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.adjust_tickets")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Int("delta", delta),
	)

	if delta == 0 {
		return nil, domain.ErrInvalidDelta
	}
	if idempotencyKey == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}

	var result *domain.AdjustResult
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ticket_adjustments (idempotency_key, event_id, delta)
			VALUES ($1, $2, $3)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, idempotencyKey, id, delta)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("failed to record adjustment: %w", err)
		}

		if tag.RowsAffected() == 0 {
			recorded, err := lockAdjustment(ctx, tx, idempotencyKey)
			if err != nil {
				return err
			}
			if recorded.State == domain.AdjustmentUndone {
				if _, err := tx.Exec(ctx, `
					UPDATE ticket_adjustments
					SET state = 'applied', event_id = $2, delta = $3, created_at = NOW()
					WHERE idempotency_key = $1
				`, idempotencyKey, id, delta); err != nil {
					if isForeignKeyViolation(err) {
						return domain.ErrEventNotFound
					}
					return fmt.Errorf("failed to reapply adjustment: %w", err)
				}
				event, err := applyDelta(ctx, tx, id, delta)
				if err != nil {
					return err
				}
				result = &domain.AdjustResult{Event: event}
				return nil
			}
			if err := recorded.CheckReplay(id, delta); err != nil {
				return err
			}
			event, err := getEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			result = &domain.AdjustResult{Event: event, Duplicate: true}
			return nil
		}

		event, err := applyDelta(ctx, tx, id, delta)
		if err != nil {
			return err
		}
		result = &domain.AdjustResult{Event: event}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Bool("duplicate", result.Duplicate))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func applyDelta(ctx context.Context, tx pgx.Tx, id string, delta int) (*domain.Event, error) {
	var query string
	if delta > 0 {
		query = `
			UPDATE events
			SET available_tickets = available_tickets - $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'PUBLISHED' AND available_tickets >= $2
			RETURNING ` + eventColumns
	} else {
		query = `
			UPDATE events
			SET available_tickets = LEAST(capacity, available_tickets - $2), version = version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + eventColumns
	}

	event, err := scanEvent(tx.QueryRow(ctx, query, id, delta))
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to adjust tickets: %w", err)
	}

	// Nothing matched: work out which precondition failed
	current, getErr := getEvent(ctx, tx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != domain.EventStatusPublished {
		return nil, domain.ErrEventNotPublished
	}
	return nil, domain.ErrInsufficientTickets
}

func lockAdjustment(ctx context.Context, tx pgx.Tx, idempotencyKey string) (*domain.TicketAdjustment, error) {
	var (
		adj   = domain.TicketAdjustment{IdempotencyKey: idempotencyKey}
		state string
	)
	err := tx.QueryRow(ctx, `
		SELECT event_id, delta, state, created_at
		FROM ticket_adjustments
		WHERE idempotency_key = $1
		FOR UPDATE
	`, idempotencyKey).Scan(&adj.EventID, &adj.Delta, &state, &adj.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read adjustment: %w", err)
	}
	adj.State = domain.AdjustmentState(state)
	return &adj, nil
}

// ReverseAdjustment marks the adjustment undone and gives its delta back. An unknown
// key gets a tombstone row instead. The tombstone insert waits on an in-flight
// reserve holding the same key, so a reserve that commits first is reversed and one
// that commits later finds the tombstone.
func (r *PostgresEventRepository) ReverseAdjustment(ctx context.Context, id string, idempotencyKey string) (*domain.AdjustResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.reverse_adjustment")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if idempotencyKey == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}

	var result *domain.AdjustResult
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ticket_adjustments (idempotency_key, event_id, delta, state)
			VALUES ($1, $2, 0, 'tombstone')
			ON CONFLICT (idempotency_key) DO NOTHING
		`, idempotencyKey, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("failed to record reversal: %w", err)
		}
		if tag.RowsAffected() == 1 {
			event, err := getEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			result = &domain.AdjustResult{Event: event, Duplicate: true}
			return nil
		}

		var delta int
		err = tx.QueryRow(ctx, `
			UPDATE ticket_adjustments
			SET state = 'undone'
			WHERE idempotency_key = $1 AND event_id = $2 AND state = 'applied'
			RETURNING delta
		`, idempotencyKey, id).Scan(&delta)
		if errors.Is(err, pgx.ErrNoRows) {
			event, err := getEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			result = &domain.AdjustResult{Event: event, Duplicate: true}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark adjustment undone: %w", err)
		}

		event, err := scanEvent(tx.QueryRow(ctx, `
			UPDATE events
			SET available_tickets = GREATEST(0, LEAST(capacity, available_tickets + $2)),
			    version = version + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING `+eventColumns, id, delta))
		if err != nil {
			return fmt.Errorf("failed to reverse adjustment: %w", err)
		}
		result = &domain.AdjustResult{Event: event}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Bool("duplicate", result.Duplicate))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrEventNotFound) ||
		errors.Is(err, domain.ErrEventNotPublished) ||
		errors.Is(err, domain.ErrInsufficientTickets) ||
		domain.IsIdempotencyError(err)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
