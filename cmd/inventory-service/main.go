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
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/di"
	"github.com/prohmpiriya/event-booking-saga/internal/inventory/repository"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/database"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	pkgredis "github.com/prohmpiriya/event-booking-saga/pkg/redis"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateInventoryDatabase(); err != nil {
		log.Fatalf("Invalid inventory database config: %v", err)
	}

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
	appLog.Info("Starting Inventory Service...")

	ctx := context.Background()

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

	dbCfg := database.ConfigFrom(cfg.InventoryDatabase, cfg.OTel.Enabled)
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.RegisterPoolMetrics(); err != nil {
		appLog.Warn("Failed to register database pool metrics", zap.Error(err))
	}
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Without Redis every snapshot read goes to Postgres
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.ConfigFrom(cfg.Redis))
	if err != nil {
		appLog.Warn("Redis connection failed, snapshot cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	container := di.NewContainer(&di.ContainerConfig{
		DB:          db,
		Redis:       redisClient,
		EventRepo:   repository.NewPostgresEventRepository(db.Pool()),
		SnapshotTTL: repository.DefaultSnapshotTTL,
	})

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), telemetry.TracingMiddleware(serviceName))

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	v1 := router.Group("/api/v1")
	container.EventHandler.RegisterRoutes(v1, cfg.Services.InternalSecret)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Inventory Service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	appLog.Info("Server exited gracefully")
}
