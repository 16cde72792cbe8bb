package di

import (
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/inventory/handler"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/repository"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/health"
	"github.com/prohmpiriya/event-booking-saga/pkg/redis"
)

// Container holds all dependencies for the inventory service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	EventRepo repository.EventRepository

	// Services
	InventoryService service.InventoryService

	// Handlers
	HealthHandler *health.Handler
	EventHandler  *handler.EventHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB          *database.PostgresDB
	Redis       *redis.Client
	EventRepo   repository.EventRepository
	SnapshotTTL time.Duration
}

// NewContainer creates a new dependency injection container.
// The event repository is wrapped with the snapshot cache when Redis is available.
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:        cfg.DB,
		Redis:     cfg.Redis,
		EventRepo: cfg.EventRepo,
	}
	if c.Redis != nil {
		c.EventRepo = repository.NewCachedEventRepository(cfg.EventRepo, c.Redis, cfg.SnapshotTTL)
	}

	c.InventoryService = service.NewInventoryService(c.EventRepo)

	components := map[string]health.Checker{}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.HealthHandler = health.NewHandler("inventory-service", components)
	c.EventHandler = handler.NewEventHandler(c.InventoryService)

	return c
}
