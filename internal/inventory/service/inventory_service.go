package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/dto"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/repository"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// InventoryService owns event stock
type InventoryService interface {
	// GetEvent returns the public snapshot of an event
	GetEvent(ctx context.Context, id string) (*dto.EventResponse, error)

	// AdjustTickets reserves (delta > 0) or releases (delta < 0) tickets once per
	// idempotency key, or reverses an earlier adjustment when req.Reverses is set
	AdjustTickets(ctx context.Context, id string, req *dto.AdjustTicketsRequest, idempotencyKey string) (*dto.EventResponse, error)

	// CreateEvent creates an event with all of its tickets available
	CreateEvent(ctx context.Context, input *CreateEventInput) (*domain.Event, error)
}

// CreateEventInput describes a new event
type CreateEventInput struct {
	Title         string
	Price         string
	Capacity      int
	StartDateTime time.Time
	Status        domain.EventStatus
}

type inventoryService struct {
	eventRepo repository.EventRepository
	adjusted  *telemetry.Counter
	reserved  *telemetry.UpDownCounter
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(eventRepo repository.EventRepository) InventoryService {
	s := &inventoryService{eventRepo: eventRepo}

	var err error
	s.adjusted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "inventory_adjustments_total",
		Description: "Ticket adjustments by kind and outcome",
		Unit:        "1",
	})
	if err != nil {
		logger.Get().Warn("Failed to create adjustments counter", zap.Error(err))
	}
	s.reserved, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "inventory_tickets_reserved",
		Description: "Net tickets taken out of stock",
		Unit:        "1",
	})
	if err != nil {
		logger.Get().Warn("Failed to create reserved tickets counter", zap.Error(err))
	}
	return s
}

// GetEvent returns an event snapshot
func (s *inventoryService) GetEvent(ctx context.Context, id string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.get_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromEvent(event), nil
}

// AdjustTickets applies or reverses a stock adjustment
func (s *inventoryService) AdjustTickets(ctx context.Context, id string, req *dto.AdjustTicketsRequest, idempotencyKey string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.adjust_tickets")
	defer span.End()

	kind := adjustmentKind(req)
	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.String("kind", kind),
		attribute.Int("delta", req.Delta),
	)
	log := logger.Get().WithContext(ctx).With(
		zap.String("event_id", id),
		zap.String("kind", kind),
	)

	var (
		result *domain.AdjustResult
		err    error
	)
	if req.Reverses != "" {
		result, err = s.eventRepo.ReverseAdjustment(ctx, id, req.Reverses)
	} else {
		result, err = s.eventRepo.AdjustTickets(ctx, id, req.Delta, idempotencyKey)
	}
	if err != nil {
		s.adjusted.Inc(ctx, attribute.String("kind", kind), attribute.String("outcome", outcome(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !isExpected(err) {
			log.Error("Ticket adjustment failed", zap.Error(err))
		}
		return nil, err
	}

	if result.Duplicate {
		s.adjusted.Inc(ctx, attribute.String("kind", kind), attribute.String("outcome", "duplicate"))
		log.Info("Ticket adjustment already applied", zap.Int("available_tickets", result.Event.AvailableTickets))
	} else {
		s.adjusted.Inc(ctx, attribute.String("kind", kind), attribute.String("outcome", "applied"))
		if req.Reverses == "" {
			s.reserved.Add(ctx, int64(req.Delta))
		}
		log.Info("Tickets adjusted",
			zap.Int("delta", req.Delta),
			zap.Int("available_tickets", result.Event.AvailableTickets),
		)
	}

	span.SetAttributes(attribute.Bool("duplicate", result.Duplicate))
	span.SetStatus(codes.Ok, "")
	return dto.FromEvent(result.Event), nil
}

// CreateEvent validates and stores a new event
func (s *inventoryService) CreateEvent(ctx context.Context, input *CreateEventInput) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.inventory.create_event")
	defer span.End()

	priceCents, err := domain.ParsePrice(input.Price)
	if err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = domain.EventStatusPublished
	}

	event, err := domain.NewEvent(uuid.New().String(), input.Title, status, priceCents, input.Capacity, input.StartDateTime)
	if err != nil {
		return nil, err
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("event_id", event.ID))
	span.SetStatus(codes.Ok, "")
	logger.Get().WithContext(ctx).Info("Event created",
		zap.String("event_id", event.ID),
		zap.String("title", event.Title),
		zap.Int("capacity", event.Capacity),
	)
	return event, nil
}

func adjustmentKind(req *dto.AdjustTicketsRequest) string {
	switch {
	case req.Reverses != "":
		return "reversal"
	case req.Delta > 0:
		return "reserve"
	default:
		return "release"
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrEventNotPublished):
		return "not_published"
	case errors.Is(err, domain.ErrInsufficientTickets):
		return "insufficient"
	case domain.IsIdempotencyError(err):
		return "key_conflict"
	case domain.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

func isExpected(err error) bool {
	return outcome(err) != "error"
}
