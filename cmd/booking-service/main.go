package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/di"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/metrics"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/service"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/middleware"
	pkgredis "github.com/prohmpiriya/event-booking-saga/pkg/redis"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "booking-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateBookingDatabase(); err != nil {
		log.Fatalf("Invalid booking database config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
		OTelBridge:  cfg.OTel.Enabled && cfg.OTel.ExportLogs,
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Booking Service...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
		ExportLogs:     cfg.OTel.ExportLogs,
	}); err != nil {
		appLog.Warn("Telemetry initialization failed, continuing without export", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to initialize booking metrics", zap.Error(err))
	}

	// Initialize database connection
	dbCfg := database.ConfigFrom(cfg.BookingDatabase, cfg.OTel.Enabled)
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.RegisterPoolMetrics(); err != nil {
		appLog.Warn("Failed to register database pool metrics", zap.Error(err))
	}
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Redis backs the idempotency middleware only, so the service can run without it
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(ctx, pkgredis.ConfigFrom(cfg.Redis))
	if err != nil {
		appLog.Warn("Redis connection failed, request idempotency disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Initialize Kafka event publisher
	var eventPublisher service.EventPublisher
	eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.BookingTopic,
		ServiceName: serviceName,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		eventPublisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected", zap.String("topic", cfg.Kafka.BookingTopic))
	}
	defer eventPublisher.Close()

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:          db,
		Redis:       redisClient,
		BookingRepo: repository.NewPostgresBookingRepository(db.Pool()),
		ReleaseRepo: repository.NewPostgresPendingReleaseRepository(db.Pool()),
		Inventory: gateway.NewHTTPInventoryGateway(&gateway.HTTPInventoryGatewayConfig{
			BaseURL:        cfg.Services.InventoryServiceURL,
			InternalSecret: cfg.Services.InternalSecret,
			Timeout:        cfg.Services.RequestTimeout,
		}),
		EventPublisher: eventPublisher,
		ServiceConfig: &service.BookingServiceConfig{
			ReserveTimeout:    cfg.Services.RequestTimeout * 2,
			BackgroundTimeout: cfg.Services.RequestTimeout * 2,
		},
	})

	// Setup Gin
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), telemetry.TracingMiddleware(serviceName))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity(middleware.IdentityConfig{
		JWTSecret: cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
	}))

	var writeMiddleware []gin.HandlerFunc
	if redisClient != nil {
		writeMiddleware = append(writeMiddleware,
			middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(redisClient.Client())))
	}
	container.BookingHandler.RegisterRoutes(v1, writeMiddleware...)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Booking Service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let background releases and publishes finish before the clients close
	container.BookingService.Wait()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	appLog.Info("Server exited gracefully")
}
