package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresPendingReleaseRepository implements PendingReleaseRepository
type PostgresPendingReleaseRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPendingReleaseRepository creates a new PostgresPendingReleaseRepository
func NewPostgresPendingReleaseRepository(pool *pgxpool.Pool) *PostgresPendingReleaseRepository {
	return &PostgresPendingReleaseRepository{pool: pool}
}

// Enqueue stores a pending release
func (r *PostgresPendingReleaseRepository) Enqueue(ctx context.Context, release *domain.PendingRelease) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.pending_release.enqueue")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", release.BookingID),
		attribute.String("event_id", release.EventID),
	)

	now := time.Now().UTC()
	if release.NextAttemptAt.IsZero() {
		release.NextAttemptAt = now
	}
	release.Status = domain.PendingReleasePending
	release.CreatedAt = now
	release.UpdatedAt = now

	query := `
		INSERT INTO pending_releases (
			id, booking_id, event_id, ticket_count, idempotency_key, reservation_key,
			attempts, last_error, status, next_attempt_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		release.ID,
		release.BookingID,
		release.EventID,
		release.TicketCount,
		release.IdempotencyKey,
		nullString(release.ReservationKey),
		release.Attempts,
		nullString(release.LastError),
		string(release.Status),
		release.NextAttemptAt,
		release.CreatedAt,
		release.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to enqueue pending release: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ClaimDue leases due releases using SKIP LOCKED
func (r *PostgresPendingReleaseRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.PendingRelease, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.pending_release.claim_due")
	defer span.End()

	query := `
		UPDATE pending_releases
		SET next_attempt_at = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM pending_releases
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, booking_id, event_id, ticket_count, idempotency_key, COALESCE(reservation_key, ''),
			attempts, COALESCE(last_error, ''), status, next_attempt_at, created_at, updated_at
	`

	rows, err := r.pool.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to claim pending releases: %w", err)
	}
	defer rows.Close()

	var releases []*domain.PendingRelease
	for rows.Next() {
		var (
			p      domain.PendingRelease
			status string
		)
		if err := rows.Scan(
			&p.ID, &p.BookingID, &p.EventID, &p.TicketCount, &p.IdempotencyKey, &p.ReservationKey,
			&p.Attempts, &p.LastError, &status, &p.NextAttemptAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending release: %w", err)
		}
		p.Status = domain.PendingReleaseStatus(status)
		releases = append(releases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending releases: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(releases)))
	span.SetStatus(codes.Ok, "")
	return releases, nil
}

// MarkDone marks a release as applied
func (r *PostgresPendingReleaseRepository) MarkDone(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.PendingReleaseDone, nil, nil)
}

// Reschedule records a failed attempt
func (r *PostgresPendingReleaseRepository) Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_releases
		SET attempts = $2, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, attempts, lastErr, next)
	if err != nil {
		return fmt.Errorf("failed to reschedule pending release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPendingReleaseNotFound
	}
	return nil
}

// MarkDead gives up on a release
func (r *PostgresPendingReleaseRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.setStatus(ctx, id, domain.PendingReleaseDead, &attempts, &lastErr)
}

func (r *PostgresPendingReleaseRepository) setStatus(ctx context.Context, id string, status domain.PendingReleaseStatus, attempts *int, lastErr *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_releases
		SET status = $2,
			attempts = COALESCE($3, attempts),
			last_error = COALESCE($4, last_error),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), attempts, lastErr)
	if err != nil {
		return fmt.Errorf("failed to mark pending release %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPendingReleaseNotFound
	}
	return nil
}
