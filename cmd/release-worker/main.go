package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/gateway"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/metrics"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/repository"
	"github.com/prohmpiriya/event-booking-saga/internal/booking/worker"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "release-worker"

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
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
		OTelBridge:  cfg.OTel.Enabled && cfg.OTel.ExportLogs,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Release Retry Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry initialization failed, continuing without export", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to initialize booking metrics", zap.Error(err))
	}

	// The queue lives in the booking database
	dbCfg := database.ConfigFrom(cfg.BookingDatabase, cfg.OTel.Enabled)
	dbCfg.MaxConns = 5
	dbCfg.MinConns = 1
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.RegisterPoolMetrics(); err != nil {
		appLog.Warn("Failed to register database pool metrics", zap.Error(err))
	}
	appLog.Info("Database connected")

	inventory := gateway.NewHTTPInventoryGateway(&gateway.HTTPInventoryGatewayConfig{
		BaseURL:        cfg.Services.InventoryServiceURL,
		InternalSecret: cfg.Services.InternalSecret,
		Timeout:        cfg.Services.RequestTimeout,
	})

	releaseWorker := worker.NewReleaseRetryWorker(
		repository.NewPostgresPendingReleaseRepository(db.Pool()),
		inventory,
		&worker.ReleaseWorkerConfig{
			PollInterval: cfg.Worker.ReleasePollInterval,
			BatchSize:    cfg.Worker.ReleaseBatchSize,
			MaxAttempts:  cfg.Worker.ReleaseMaxAttempts,
			CallTimeout:  cfg.Services.RequestTimeout,
		},
	)
	if err := releaseWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start worker", zap.Error(err))
	}
	appLog.Info("Release Retry Worker started successfully",
		zap.Duration("poll_interval", cfg.Worker.ReleasePollInterval),
		zap.Int("max_attempts", cfg.Worker.ReleaseMaxAttempts),
	)

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	releaseWorker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	appLog.Info("Worker exited gracefully")
}
