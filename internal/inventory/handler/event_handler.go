package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/domain"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/dto"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/middleware"
	"github.com/prohmpiriya/event-booking-saga/pkg/response"
	"go.uber.org/zap"
)

// EventHandler handles event HTTP requests
type EventHandler struct {
	inventoryService service.InventoryService
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(inventoryService service.InventoryService) *EventHandler {
	return &EventHandler{inventoryService: inventoryService}
}

// RegisterRoutes mounts the event routes. The ticket adjustment route is only
// reachable with the internal secret.
func (h *EventHandler) RegisterRoutes(rg *gin.RouterGroup, internalSecret string) {
	events := rg.Group("/events")
	events.GET("/:id", h.GetEvent)
	events.PATCH("/:id/tickets", middleware.InternalSecret(internalSecret), h.AdjustTickets)
}

// GetEvent handles GET /events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.inventoryService.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, event)
}

// AdjustTickets handles PATCH /events/:id/tickets
func (h *EventHandler) AdjustTickets(c *gin.Context) {
	var req dto.AdjustTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Validation failed", map[string]string{"body": "must be a valid adjustment"})
		return
	}

	key := c.GetHeader(middleware.IdempotencyKeyHeader)
	event, err := h.inventoryService.AdjustTickets(c.Request.Context(), c.Param("id"), &req, key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, event)
}

func (h *EventHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingIdempotencyKey):
		response.ValidationError(c, "Validation failed", map[string]string{middleware.IdempotencyKeyHeader: err.Error()})
	case errors.Is(err, domain.ErrInvalidDelta):
		response.ValidationError(c, "Validation failed", map[string]string{"delta": err.Error()})
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInsufficientTickets):
		response.Conflict(c, err.Error())
	case errors.Is(err, domain.ErrEventNotPublished):
		response.Error(c, http.StatusUnprocessableEntity, err.Error())
	case domain.IsIdempotencyError(err):
		response.Error(c, http.StatusPreconditionFailed, err.Error())
	default:
		logger.Get().WithContext(c.Request.Context()).Error("Unhandled inventory error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}
