package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsFailed    *telemetry.Counter
	BookingsCancelled *telemetry.Counter

	// Best-effort step failures
	InventoryReleaseFailures *telemetry.Counter
	EventPublishFailures     *telemetry.Counter

	// Release retry worker
	PendingReleasesProcessed *telemetry.Counter
	PendingReleasesDead      *telemetry.Counter

	CreateDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_created_total",
		Description: "Total number of confirmed bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_failed_total",
		Description: "Total number of failed booking attempts by reason",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_cancelled_total",
		Description: "Total number of cancelled bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	InventoryReleaseFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "inventory_release_failures_total",
		Description: "Ticket releases that failed and were queued for retry",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	EventPublishFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "event_publish_failures_total",
		Description: "Booking events that could not be published",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PendingReleasesProcessed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "pending_releases_processed_total",
		Description: "Pending releases handled by the retry worker by outcome",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PendingReleasesDead, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "pending_releases_dead_total",
		Description: "Pending releases given up after max attempts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CreateDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_create_duration_ms",
		Description: "Duration of the create booking saga",
		Unit:        "ms",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordCreated records a confirmed booking
func RecordCreated(ctx context.Context, eventID string, tickets int, started time.Time) {
	BookingsCreated.Inc(ctx,
		attribute.String("event_id", eventID),
		attribute.Int("tickets", tickets),
	)
	CreateDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		attribute.String("outcome", "confirmed"),
	)
}

// RecordFailure records a failed create attempt
func RecordFailure(ctx context.Context, eventID, reason string, started time.Time) {
	BookingsFailed.Inc(ctx,
		attribute.String("event_id", eventID),
		attribute.String("reason", reason),
	)
	if !started.IsZero() {
		CreateDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
			attribute.String("outcome", "failed"),
		)
	}
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context, eventID string) {
	BookingsCancelled.Inc(ctx, attribute.String("event_id", eventID))
}

// RecordReleaseFailure records a release that was queued for retry
func RecordReleaseFailure(ctx context.Context, eventID, phase string) {
	InventoryReleaseFailures.Inc(ctx,
		attribute.String("event_id", eventID),
		attribute.String("phase", phase),
	)
}

// RecordPublishFailure records an event that was not published
func RecordPublishFailure(ctx context.Context, eventType string) {
	EventPublishFailures.Inc(ctx, attribute.String("event_type", eventType))
}

// RecordPendingRelease records a retry worker outcome (done, retry, dead)
func RecordPendingRelease(ctx context.Context, outcome string) {
	PendingReleasesProcessed.Inc(ctx, attribute.String("outcome", outcome))
	if outcome == "dead" {
		PendingReleasesDead.Inc(ctx)
	}
}
