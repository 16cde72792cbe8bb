package di

import (
	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/handler"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/health"
	"github.com/prohmpiriya/event-booking-saga/pkg/redis"
)

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	BookingRepo repository.BookingRepository
	ReleaseRepo repository.PendingReleaseRepository

	// Remote
	Inventory gateway.InventoryGateway

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	BookingService service.BookingService

	// Handlers
	HealthHandler  *health.Handler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Redis          *redis.Client
	BookingRepo    repository.BookingRepository
	ReleaseRepo    repository.PendingReleaseRepository
	Inventory      gateway.InventoryGateway
	EventPublisher service.EventPublisher
	ServiceConfig  *service.BookingServiceConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		BookingRepo:    cfg.BookingRepo,
		ReleaseRepo:    cfg.ReleaseRepo,
		Inventory:      cfg.Inventory,
		EventPublisher: cfg.EventPublisher,
	}

	// Initialize services
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.ReleaseRepo,
		c.Inventory,
		service.NewReferenceAllocator(c.BookingRepo, nil),
		c.EventPublisher,
		cfg.ServiceConfig,
	)

	// Initialize handlers
	components := map[string]health.Checker{}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.HealthHandler = health.NewHandler("booking-service", components)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)

	return c
}
