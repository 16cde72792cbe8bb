package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/dto"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/middleware"
	"github.com/prohmpiriya/event-booking-saga/pkg/response"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// RegisterRoutes mounts the booking routes on rg. Write routes get the extra
// middlewares (idempotency) in front of them.
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup, writeMiddleware ...gin.HandlerFunc) {
	bookings := rg.Group("/bookings")

	create := append(append([]gin.HandlerFunc{}, writeMiddleware...), h.CreateBooking)
	cancel := append(append([]gin.HandlerFunc{}, writeMiddleware...), h.DeleteBooking)

	bookings.POST("", create...)
	bookings.GET("/mine", h.ListMyBookings)
	bookings.GET("/:id", h.GetBooking)
	bookings.DELETE("/:id", cancel...)
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "Missing caller identity")
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.ValidationError(c, "Validation failed", bindingErrors(err))
		return
	}

	// The header is still honoured when the Redis middleware is not mounted
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		req.IdempotencyKey = key
	} else {
		req.IdempotencyKey = c.GetHeader(middleware.IdempotencyKeyHeader)
	}
	req.Email = middleware.GetUserEmail(c)

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("ticket_count", req.TicketCount),
	)

	result, err := h.bookingService.CreateBooking(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Missing caller identity")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.GetBooking(ctx, bookingID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ListMyBookings handles GET /bookings/mine?page=&size=
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list_mine")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Missing caller identity")
		return
	}

	page, err := queryInt(c, "page", 0)
	if err != nil {
		response.ValidationError(c, "Validation failed", map[string]string{"page": "must be a number"})
		return
	}
	size, err := queryInt(c, "size", dto.DefaultPageSize)
	if err != nil {
		response.ValidationError(c, "Validation failed", map[string]string{"size": "must be a number"})
		return
	}

	result, err := h.bookingService.ListMyBookings(ctx, userID, page, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// DeleteBooking handles DELETE /bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Missing caller identity")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.DeleteBooking(ctx, bookingID, userID, middleware.GetUserEmail(c))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// handleError converts domain errors to HTTP responses
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTicketCount):
		response.ValidationError(c, "Validation failed", map[string]string{"ticketCount": err.Error()})
	case errors.Is(err, domain.ErrInvalidEventID):
		response.ValidationError(c, "Validation failed", map[string]string{"eventId": err.Error()})
	case errors.Is(err, domain.ErrInvalidPrice):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrInvalidUserID):
		response.Unauthorized(c, "Missing caller identity")
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrEventNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrInsufficientTickets),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrNotCancellable):
		response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrEventNotPublished),
		errors.Is(err, domain.ErrIdempotencyKeyReused):
		response.Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		response.Error(c, http.StatusServiceUnavailable, domain.ErrUpstreamUnavailable.Error())
	default:
		logger.Get().WithContext(c.Request.Context()).Error("Unhandled booking error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
