package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/middleware"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// InventoryGateway is the booking service's view of the remote inventory service.
// Reserve is the only call that takes tickets; it is never retried here.
type InventoryGateway interface {
	// GetEvent returns the current snapshot of an event
	GetEvent(ctx context.Context, eventID string) (*domain.EventSnapshot, error)

	// Reserve takes count tickets. The inventory applies a given key at most once and
	// rejects it with domain.ErrIdempotencyKeyReused when it was used for another event,
	// another count, or a reservation that has since been reversed.
	Reserve(ctx context.Context, eventID string, count int, idempotencyKey string) error

	// Release gives count tickets back
	Release(ctx context.Context, eventID string, count int, idempotencyKey string) error

	// CancelReservation undoes the reservation made with reservationKey. Undoing a
	// reservation the inventory never applied leaves the key tombstoned, so a late
	// Reserve with it takes nothing. Undoing an applied reservation frees the key.
	CancelReservation(ctx context.Context, eventID string, reservationKey string) error
}

// HTTPInventoryGatewayConfig configures the HTTP gateway
type HTTPInventoryGatewayConfig struct {
	BaseURL        string
	InternalSecret string
	Timeout        time.Duration
	// Transport overrides the underlying round tripper, mainly for tests
	Transport http.RoundTripper
}

// HTTPInventoryGateway implements InventoryGateway over the inventory REST API
type HTTPInventoryGateway struct {
	baseURL string
	secret  string
	client  *http.Client
	group   singleflight.Group
}

type ticketAdjustment struct {
	Delta    int    `json:"delta"`
	Reverses string `json:"reverses,omitempty"`
}

type snapshotEnvelope struct {
	Success bool                 `json:"success"`
	Data    domain.EventSnapshot `json:"data"`
}

// NewHTTPInventoryGateway creates a new gateway
func NewHTTPInventoryGateway(cfg *HTTPInventoryGatewayConfig) *HTTPInventoryGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &HTTPInventoryGateway{
		baseURL: cfg.BaseURL,
		secret:  cfg.InternalSecret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// GetEvent fetches a snapshot. Concurrent calls for the same event share one request.
func (g *HTTPInventoryGateway) GetEvent(ctx context.Context, eventID string) (*domain.EventSnapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.inventory.get_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	ch := g.group.DoChan(eventID, func() (interface{}, error) {
		// Shared by every waiter, so it must not die with the first caller
		return g.fetchEvent(context.WithoutCancel(ctx), eventID)
	})

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "cancelled")
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return nil, res.Err
		}
		snap := *res.Val.(*domain.EventSnapshot)
		span.SetAttributes(attribute.Bool("shared", res.Shared))
		span.SetStatus(codes.Ok, "")
		return &snap, nil
	}
}

func (g *HTTPInventoryGateway) fetchEvent(ctx context.Context, eventID string) (*domain.EventSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.eventURL(eventID, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	g.setHeaders(req, "")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.mapStatus(ctx, resp, eventID)
	}

	var env snapshotEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: invalid snapshot payload: %v", domain.ErrUpstreamUnavailable, err)
	}
	return &env.Data, nil
}

// Reserve takes tickets
func (g *HTTPInventoryGateway) Reserve(ctx context.Context, eventID string, count int, idempotencyKey string) error {
	ctx, span := telemetry.StartSpan(ctx, "gateway.inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("count", count),
	)

	if err := g.adjust(ctx, eventID, ticketAdjustment{Delta: count}, idempotencyKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Release gives tickets back with a negative delta
func (g *HTTPInventoryGateway) Release(ctx context.Context, eventID string, count int, idempotencyKey string) error {
	ctx, span := telemetry.StartSpan(ctx, "gateway.inventory.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("count", count),
	)

	if err := g.adjust(ctx, eventID, ticketAdjustment{Delta: -count}, idempotencyKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// CancelReservation reverses a reservation by its key
func (g *HTTPInventoryGateway) CancelReservation(ctx context.Context, eventID string, reservationKey string) error {
	ctx, span := telemetry.StartSpan(ctx, "gateway.inventory.cancel_reservation")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if err := g.adjust(ctx, eventID, ticketAdjustment{Reverses: reservationKey}, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (g *HTTPInventoryGateway) adjust(ctx context.Context, eventID string, adj ticketAdjustment, idempotencyKey string) error {
	body, err := json.Marshal(adj)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, g.eventURL(eventID, "/tickets"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	g.setHeaders(req, idempotencyKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return g.mapStatus(ctx, resp, eventID)
}

func (g *HTTPInventoryGateway) mapStatus(ctx context.Context, resp *http.Response, eventID string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrEventNotFound
	case http.StatusConflict:
		return domain.ErrInsufficientTickets
	case http.StatusUnprocessableEntity:
		return domain.ErrEventNotPublished
	case http.StatusPreconditionFailed:
		return domain.ErrIdempotencyKeyReused
	case http.StatusUnauthorized, http.StatusForbidden:
		logger.Get().WithContext(ctx).Error("Inventory rejected internal credentials",
			zap.String("event_id", eventID),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: inventory returned %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: inventory returned %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
}

func (g *HTTPInventoryGateway) setHeaders(req *http.Request, idempotencyKey string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.InternalSecretHeader, g.secret)
	if idempotencyKey != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, idempotencyKey)
	}
}

func (g *HTTPInventoryGateway) eventURL(eventID, suffix string) string {
	return fmt.Sprintf("%s/api/v1/events/%s%s", g.baseURL, url.PathEscape(eventID), suffix)
}
