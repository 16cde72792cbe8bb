package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/metrics"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/retry"
	"go.uber.org/zap"
)

// ReleaseWorkerConfig contains configuration for the release retry worker
type ReleaseWorkerConfig struct {
	// PollInterval is the interval between polls of the release queue
	PollInterval time.Duration
	// BatchSize is the number of releases claimed per poll
	BatchSize int
	// Lease hides a claimed release from other workers for this long
	Lease time.Duration
	// MaxAttempts is the number of failed attempts before a release is marked dead
	MaxAttempts int
	// CallTimeout bounds a single inventory call
	CallTimeout time.Duration
	// Backoff spaces out the attempts of one release
	Backoff *retry.Config
}

// DefaultReleaseWorkerConfig returns default configuration
func DefaultReleaseWorkerConfig() *ReleaseWorkerConfig {
	return &ReleaseWorkerConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    50,
		Lease:        time.Minute,
		MaxAttempts:  8,
		CallTimeout:  5 * time.Second,
		Backoff: &retry.Config{
			InitialInterval: 5 * time.Second,
			MaxInterval:     10 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}
}

// ReleaseRetryWorker drains the pending release queue, replaying each release
// against the inventory with its original idempotency key
type ReleaseRetryWorker struct {
	releaseRepo repository.PendingReleaseRepository
	inventory   gateway.InventoryGateway
	config      *ReleaseWorkerConfig
	backoff     *retry.Retrier
	now         func() time.Time
	log         *logger.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewReleaseRetryWorker creates a new release retry worker
func NewReleaseRetryWorker(
	releaseRepo repository.PendingReleaseRepository,
	inventory gateway.InventoryGateway,
	config *ReleaseWorkerConfig,
) *ReleaseRetryWorker {
	defaults := DefaultReleaseWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.Backoff == nil {
		config.Backoff = defaults.Backoff
	}

	return &ReleaseRetryWorker{
		releaseRepo: releaseRepo,
		inventory:   inventory,
		config:      config,
		backoff:     retry.New(config.Backoff),
		now:         time.Now,
		log:         logger.Get(),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the polling loop
func (w *ReleaseRetryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("release retry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting release retry worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts),
	)

	w.wg.Add(1)
	go w.poll(ctx)

	return nil
}

// Stop stops the worker and waits for the in-flight batch
func (w *ReleaseRetryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping release retry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Release retry worker stopped")
}

func (w *ReleaseRetryWorker) poll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain whatever piled up while the worker was down
	w.ProcessOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce claims one batch of due releases and attempts each of them.
// It returns the number of releases that were applied.
func (w *ReleaseRetryWorker) ProcessOnce(ctx context.Context) int {
	releases, err := w.releaseRepo.ClaimDue(ctx, w.now(), w.config.Lease, w.config.BatchSize)
	if err != nil {
		w.log.Error("Failed to claim pending releases", zap.Error(err))
		return 0
	}

	applied := 0
	for _, release := range releases {
		if ctx.Err() != nil {
			break
		}
		if w.process(ctx, release) {
			applied++
		}
	}
	return applied
}

func (w *ReleaseRetryWorker) process(ctx context.Context, release *domain.PendingRelease) bool {
	log := w.log.With(
		zap.String("release_id", release.ID),
		zap.String("booking_id", release.BookingID),
		zap.String("event_id", release.EventID),
		zap.Int("attempt", release.Attempts+1),
	)

	err := w.apply(ctx, release)
	if err == nil {
		if markErr := w.releaseRepo.MarkDone(ctx, release.ID); markErr != nil {
			log.Error("Failed to mark release as done", zap.Error(markErr))
		}
		metrics.RecordPendingRelease(ctx, "done")
		log.Info("Pending release applied", zap.Bool("reversal", release.IsReversal()))
		return true
	}

	attempts := release.Attempts + 1
	if attempts >= w.config.MaxAttempts || errors.Is(err, domain.ErrEventNotFound) {
		if markErr := w.releaseRepo.MarkDead(ctx, release.ID, attempts, err.Error()); markErr != nil {
			log.Error("Failed to mark release as dead", zap.Error(markErr))
		}
		metrics.RecordPendingRelease(ctx, "dead")
		log.Error("Pending release abandoned, manual reconciliation needed",
			zap.Int("ticket_count", release.TicketCount),
			zap.String("idempotency_key", release.IdempotencyKey),
			zap.Error(err),
		)
		return false
	}

	next := w.now().Add(w.backoff.Backoff(release.Attempts))
	if markErr := w.releaseRepo.Reschedule(ctx, release.ID, attempts, err.Error(), next); markErr != nil {
		log.Error("Failed to reschedule release", zap.Error(markErr))
	}
	metrics.RecordPendingRelease(ctx, "retry")
	log.Warn("Pending release failed, rescheduled", zap.Time("next_attempt_at", next), zap.Error(err))
	return false
}

func (w *ReleaseRetryWorker) apply(ctx context.Context, release *domain.PendingRelease) error {
	callCtx, cancel := context.WithTimeout(ctx, w.config.CallTimeout)
	defer cancel()

	if release.IsReversal() {
		return w.inventory.CancelReservation(callCtx, release.EventID, release.ReservationKey)
	}
	return w.inventory.Release(callCtx, release.EventID, release.TicketCount, release.IdempotencyKey)
}
