package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/dto"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/metrics"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/saga"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking reserves tickets and persists a confirmed booking
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)

	// DeleteBooking cancels a confirmed booking owned by userID
	DeleteBooking(ctx context.Context, bookingID, userID, email string) (*dto.BookingResponse, error)

	// GetBooking retrieves a booking owned by userID
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// ListMyBookings returns the caller's bookings, newest first
	ListMyBookings(ctx context.Context, userID string, page, size int) (*dto.PagedResponse, error)

	// Wait blocks until background releases and publishes have finished
	Wait()
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	// ReserveTimeout bounds the remote reserve step
	ReserveTimeout time.Duration
	// PersistTimeout bounds the local write, which ignores request cancellation
	PersistTimeout time.Duration
	// BackgroundTimeout bounds each best-effort release or publish
	BackgroundTimeout time.Duration
	// MaxCancelAttempts is how many times a cancel is tried on version conflicts
	MaxCancelAttempts int
}

// createState is shared by the steps of the create saga
type createState struct {
	bookingID      string
	userID         string
	email          string
	eventID        string
	ticketCount    int
	reservationKey string
	generatedKey   bool
	snapshot       *domain.EventSnapshot
	booking        *domain.Booking
	// replayed is set when a concurrent request with the same key stored the booking first
	replayed bool
}

// reservationNamespace scopes client idempotency keys before they reach the inventory
var reservationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:event-booking-saga:reservation"))

// scopedReservationKey derives the inventory key for a client idempotency key, so two
// users, or one user on two events, never share a reservation
func scopedReservationKey(userID, eventID, clientKey string) string {
	return uuid.NewSHA1(reservationNamespace, []byte(userID+"\x00"+eventID+"\x00"+clientKey)).String()
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo    repository.BookingRepository
	releaseRepo    repository.PendingReleaseRepository
	inventory      gateway.InventoryGateway
	references     *ReferenceAllocator
	eventPublisher EventPublisher
	createSaga     *saga.Definition[createState]

	reserveTimeout    time.Duration
	persistTimeout    time.Duration
	backgroundTimeout time.Duration
	maxCancelAttempts int

	background sync.WaitGroup
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	releaseRepo repository.PendingReleaseRepository,
	inventory gateway.InventoryGateway,
	references *ReferenceAllocator,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	reserveTimeout := 10 * time.Second
	persistTimeout := 5 * time.Second
	backgroundTimeout := 10 * time.Second
	maxCancelAttempts := 3
	if cfg != nil {
		if cfg.ReserveTimeout > 0 {
			reserveTimeout = cfg.ReserveTimeout
		}
		if cfg.PersistTimeout > 0 {
			persistTimeout = cfg.PersistTimeout
		}
		if cfg.BackgroundTimeout > 0 {
			backgroundTimeout = cfg.BackgroundTimeout
		}
		if cfg.MaxCancelAttempts > 0 {
			maxCancelAttempts = cfg.MaxCancelAttempts
		}
	}
	if references == nil {
		references = NewReferenceAllocator(bookingRepo, nil)
	}
	// Use NoOpEventPublisher if none provided
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}

	s := &bookingService{
		bookingRepo:       bookingRepo,
		releaseRepo:       releaseRepo,
		inventory:         inventory,
		references:        references,
		eventPublisher:    eventPublisher,
		reserveTimeout:    reserveTimeout,
		persistTimeout:    persistTimeout,
		backgroundTimeout: backgroundTimeout,
		maxCancelAttempts: maxCancelAttempts,
	}

	s.createSaga = saga.NewDefinition[createState]("create_booking").
		AddStep(&saga.Step[createState]{
			Name:       "reserve_tickets",
			Execute:    s.reserveTickets,
			Compensate: s.undoReservation,
			Timeout:    reserveTimeout,
		}).
		AddStep(&saga.Step[createState]{
			Name:    "persist_booking",
			Execute: s.persistBooking,
			Timeout: persistTimeout,
		})

	return s
}

// CreateBooking reserves tickets and persists a confirmed booking
func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	started := time.Now()

	// Validate before any remote call
	if strings.TrimSpace(userID) == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || strings.TrimSpace(req.EventID) == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if err := domain.ValidateTicketCount(req.TicketCount); err != nil {
		span.SetStatus(codes.Error, "invalid ticket count")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("ticket_count", req.TicketCount),
	)

	generatedKey := req.IdempotencyKey == ""
	reservationKey := uuid.New().String()
	if !generatedKey {
		reservationKey = scopedReservationKey(userID, req.EventID, req.IdempotencyKey)

		existing, err := s.replayedBooking(ctx, userID, reservationKey, req.TicketCount)
		if err != nil {
			return nil, s.failCreate(ctx, span, req.EventID, err, started)
		}
		if existing != nil {
			span.AddEvent("booking_replayed", trace.WithAttributes(attribute.String("booking_id", existing.ID)))
			span.SetStatus(codes.Ok, "")
			return dto.FromDomain(existing), nil
		}
	}

	snapshot, err := s.inventory.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, s.failCreate(ctx, span, req.EventID, err, started)
	}
	if err := snapshot.CheckBookable(req.TicketCount); err != nil {
		return nil, s.failCreate(ctx, span, req.EventID, err, started)
	}

	state := &createState{
		bookingID:      uuid.New().String(),
		userID:         userID,
		email:          req.Email,
		eventID:        req.EventID,
		ticketCount:    req.TicketCount,
		reservationKey: reservationKey,
		generatedKey:   generatedKey,
		snapshot:       snapshot,
	}

	if _, err := s.createSaga.Run(ctx, state); err != nil {
		return nil, s.failCreate(ctx, span, req.EventID, err, started)
	}

	booking := state.booking
	if state.replayed {
		span.AddEvent("booking_replayed", trace.WithAttributes(attribute.String("booking_id", booking.ID)))
		span.SetStatus(codes.Ok, "")
		return dto.FromDomain(booking), nil
	}

	metrics.RecordCreated(ctx, booking.EventID, booking.TicketCount, started)

	span.AddEvent("booking_confirmed", trace.WithAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("reference", booking.Reference),
		attribute.String("total_price", booking.TotalPrice.String()),
	))

	event := domain.NewBookingEvent(domain.BookingEventConfirmed, uuid.New().String(), booking, req.Email, snapshot)
	s.goBackground(ctx, func(bgCtx context.Context) {
		s.publish(bgCtx, event)
	})

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// replayedBooking returns the booking an earlier request stored under key, or nil.
// Reusing a key with a different ticket count is rejected.
func (s *bookingService) replayedBooking(ctx context.Context, userID, key string, ticketCount int) (*domain.Booking, error) {
	existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if existing.TicketCount != ticketCount {
		return nil, domain.ErrIdempotencyKeyReused
	}
	return existing, nil
}

func (s *bookingService) reserveTickets(ctx context.Context, st *createState) error {
	err := s.inventory.Reserve(ctx, st.eventID, st.ticketCount, st.reservationKey)
	if err != nil && st.generatedKey && errors.Is(err, domain.ErrUpstreamUnavailable) {
		s.queueUncertainReservation(ctx, st, err)
	}
	return err
}

// queueUncertainReservation schedules the reversal of a reserve whose outcome is
// unknown. Nobody retries with a generated key, so undoing it later is safe. The
// first attempt waits out the reserve timeout; a reserve that arrives after the
// reversal finds the key tombstoned and takes nothing.
func (s *bookingService) queueUncertainReservation(ctx context.Context, st *createState, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	err := s.enqueueReversal(ctx, st, cause, time.Now().UTC().Add(s.reserveTimeout))
	if err != nil {
		logger.Get().WithContext(ctx).Error("Failed to queue reversal of uncertain reservation, tickets may be held",
			zap.String("booking_id", st.bookingID),
			zap.String("event_id", st.eventID),
			zap.String("reservation_key", st.reservationKey),
			zap.Int("ticket_count", st.ticketCount),
			zap.Error(err),
		)
	}
}

// undoReservation runs when the booking could not be persisted after a successful reserve
func (s *bookingService) undoReservation(ctx context.Context, st *createState, cause error) error {
	log := logger.Get().WithContext(ctx).With(
		zap.String("booking_id", st.bookingID),
		zap.String("event_id", st.eventID),
	)

	// A client key may already back a booking stored by a concurrent request
	if !st.generatedKey {
		owned, err := s.bookingRepo.ExistsByIdempotencyKey(ctx, st.reservationKey)
		if err != nil {
			log.Warn("Could not check reservation ownership, queueing reversal", zap.Error(err))
			return s.enqueueReversal(ctx, st, err, time.Time{})
		}
		if owned {
			log.Info("Reservation is held by a booking with the same key, keeping it", zap.NamedError("cause", cause))
			return nil
		}
	}

	err := s.inventory.CancelReservation(ctx, st.eventID, st.reservationKey)
	if err == nil {
		log.Info("Reservation cancelled after failed booking", zap.NamedError("cause", cause))
		return nil
	}

	metrics.RecordReleaseFailure(ctx, st.eventID, "compensation")
	log.Warn("Failed to cancel reservation, queueing for retry", zap.Error(err))

	return s.enqueueReversal(ctx, st, err, time.Time{})
}

// enqueueReversal queues the undo of st's reservation. A zero notBefore means now.
func (s *bookingService) enqueueReversal(ctx context.Context, st *createState, cause error, notBefore time.Time) error {
	return s.enqueueRelease(ctx, &domain.PendingRelease{
		BookingID:      st.bookingID,
		EventID:        st.eventID,
		TicketCount:    st.ticketCount,
		ReservationKey: st.reservationKey,
		LastError:      cause.Error(),
		NextAttemptAt:  notBefore,
	})
}

func (s *bookingService) persistBooking(ctx context.Context, st *createState) error {
	// A reserve that already succeeded must not be lost to a client disconnect
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	now := time.Now().UTC()
	booking := &domain.Booking{
		ID:             st.bookingID,
		UserID:         st.userID,
		EventID:        st.eventID,
		TicketCount:    st.ticketCount,
		TotalPrice:     st.snapshot.Price.Mul(st.ticketCount),
		Status:         domain.BookingStatusConfirmed,
		IdempotencyKey: st.reservationKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// References are checked before insert, but two writers can still race for one
	for attempt := 0; attempt < 3; attempt++ {
		ref, err := s.references.Generate(ctx)
		if err != nil {
			return err
		}
		booking.Reference = ref

		err = s.bookingRepo.Save(ctx, booking)
		if errors.Is(err, domain.ErrDuplicateReference) {
			continue
		}
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key stored first and owns the reservation
			existing, getErr := s.bookingRepo.GetByIdempotencyKey(ctx, st.userID, st.reservationKey)
			if getErr != nil {
				return fmt.Errorf("failed to load booking for idempotency key: %w", getErr)
			}
			st.booking, st.replayed = existing, true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to persist booking: %w", err)
		}
		st.booking = booking
		return nil
	}
	return domain.ErrReferenceExhausted
}

func (s *bookingService) failCreate(ctx context.Context, span trace.Span, eventID string, err error, started time.Time) error {
	reason := failureReason(err)
	metrics.RecordFailure(ctx, eventID, reason, started)

	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	if reason == "internal" || reason == "upstream_unavailable" {
		logger.Get().WithContext(ctx).Error("Create booking failed",
			zap.String("event_id", eventID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case domain.IsValidationError(err):
		return "validation"
	case errors.Is(err, domain.ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, domain.ErrEventNotPublished):
		return "not_published"
	case errors.Is(err, domain.ErrInsufficientTickets):
		return "insufficient_tickets"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, domain.ErrReferenceExhausted):
		return "reference_exhausted"
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return "idempotency_conflict"
	default:
		return "internal"
	}
}

// DeleteBooking cancels a confirmed booking
func (s *bookingService) DeleteBooking(ctx context.Context, bookingID, userID, email string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	if strings.TrimSpace(userID) == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	var booking *domain.Booking
	for attempt := 1; ; attempt++ {
		b, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		// Ownership and status are re-checked on every attempt
		if !b.IsOwnedBy(userID) {
			span.SetStatus(codes.Error, "not owner")
			return nil, domain.ErrUnauthorized
		}
		if err := b.Cancel(time.Now().UTC()); err != nil {
			span.SetStatus(codes.Error, "not cancellable")
			return nil, err
		}

		err = s.bookingRepo.Save(ctx, b)
		if err == nil {
			booking = b
			break
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if attempt >= s.maxCancelAttempts {
			span.SetStatus(codes.Error, "concurrency conflict")
			return nil, domain.ErrConcurrencyConflict
		}
	}

	metrics.RecordCancellation(ctx, booking.EventID)

	cancelled := *booking
	s.goBackground(ctx, func(bgCtx context.Context) {
		s.releaseCancelled(bgCtx, &cancelled)
		s.publishCancelled(bgCtx, &cancelled, email)
	})

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// releaseCancelled gives the tickets of a cancelled booking back. The cancellation stands either way.
func (s *bookingService) releaseCancelled(ctx context.Context, b *domain.Booking) {
	key := releaseKey(b.ID)
	err := s.inventory.Release(ctx, b.EventID, b.TicketCount, key)
	if err == nil {
		return
	}

	metrics.RecordReleaseFailure(ctx, b.EventID, "cancel")
	logger.Get().WithContext(ctx).Warn("Failed to release tickets, queueing for retry",
		zap.String("booking_id", b.ID),
		zap.String("event_id", b.EventID),
		zap.Int("ticket_count", b.TicketCount),
		zap.Error(err),
	)

	if qErr := s.enqueueRelease(ctx, &domain.PendingRelease{
		BookingID:   b.ID,
		EventID:     b.EventID,
		TicketCount: b.TicketCount,
		LastError:   err.Error(),
	}); qErr != nil {
		logger.Get().WithContext(ctx).Error("Release lost, manual reconciliation needed",
			zap.String("booking_id", b.ID),
			zap.String("event_id", b.EventID),
			zap.Int("ticket_count", b.TicketCount),
			zap.Error(qErr),
		)
	}
}

func (s *bookingService) enqueueRelease(ctx context.Context, release *domain.PendingRelease) error {
	if s.releaseRepo == nil {
		return fmt.Errorf("no release queue configured")
	}
	release.ID = uuid.New().String()
	release.IdempotencyKey = releaseKey(release.BookingID)
	if err := s.releaseRepo.Enqueue(ctx, release); err != nil {
		return fmt.Errorf("failed to queue release: %w", err)
	}
	return nil
}

func (s *bookingService) publishCancelled(ctx context.Context, b *domain.Booking, email string) {
	// Title and date are nice to have
	snapshot, err := s.inventory.GetEvent(ctx, b.EventID)
	if err != nil {
		snapshot = nil
	}
	s.publish(ctx, domain.NewBookingEvent(domain.BookingEventCancelled, uuid.New().String(), b, email, snapshot))
}

func (s *bookingService) publish(ctx context.Context, event *domain.BookingEvent) {
	var err error
	switch event.EventType {
	case domain.BookingEventConfirmed:
		err = s.eventPublisher.PublishBookingConfirmed(ctx, event)
	case domain.BookingEventCancelled:
		err = s.eventPublisher.PublishBookingCancelled(ctx, event)
	}
	if err != nil {
		metrics.RecordPublishFailure(ctx, string(event.EventType))
		logger.Get().WithContext(ctx).Warn("Failed to publish booking event",
			zap.String("event_type", string(event.EventType)),
			zap.String("booking_id", event.BookingID),
			zap.Error(err),
		)
	}
}

// goBackground runs fn after the response has been decided, keeping trace context
// but not the request's cancellation
func (s *bookingService) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bgCtx, cancel := context.WithTimeout(detached, s.backgroundTimeout)
		defer cancel()
		fn(bgCtx)
	}()
}

// Wait blocks until background work has finished
func (s *bookingService) Wait() {
	s.background.Wait()
}

// GetBooking retrieves a booking by ID
func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !booking.IsOwnedBy(userID) {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrUnauthorized
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// ListMyBookings returns a page of the caller's bookings
func (s *bookingService) ListMyBookings(ctx context.Context, userID string, page, size int) (*dto.PagedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_mine")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	page, size = dto.NormalizePage(page, size)
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("size", size),
	)

	bookings, total, err := s.bookingRepo.ListByUser(ctx, userID, page*size, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewPagedResponse(bookings, page, size, total), nil
}

func releaseKey(bookingID string) string {
	return "release:" + bookingID
}
