package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/notification"
	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/prohmpiriya/event-booking-saga/pkg/kafka"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	pkgredis "github.com/prohmpiriya/event-booking-saga/pkg/redis"
	"github.com/prohmpiriya/event-booking-saga/pkg/retry"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "notification-worker"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
	appLog.Info("Starting Notification Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Dedupe marks live in Redis
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.ConfigFrom(cfg.Redis))
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topics:         []string{cfg.Kafka.BookingTopic},
		ClientID:       serviceName,
		MaxRetries:     3,
		RetryInterval:  2 * time.Second,
		SessionTimeout: 30 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLog.Info("Kafka consumer connected",
		zap.String("group", cfg.Kafka.ConsumerGroup),
		zap.String("topic", cfg.Kafka.BookingTopic),
	)

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      serviceName + "-dlq",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	var notifier notification.Notifier
	switch cfg.Notification.Channel {
	case "smtp":
		notifier = notification.NewSMTPNotifier(&notification.SMTPConfig{
			Host:     cfg.Notification.SMTPHost,
			Port:     cfg.Notification.SMTPPort,
			Username: cfg.Notification.SMTPUsername,
			Password: cfg.Notification.SMTPPassword,
			From:     cfg.Notification.FromAddress,
		})
		appLog.Info("Delivering notifications by mail", zap.String("smtp_host", cfg.Notification.SMTPHost))
	default:
		notifier = notification.NewLogNotifier(appLog)
		appLog.Info("Delivering notifications to the log")
	}

	bookingConsumer := notification.NewBookingEventConsumer(
		consumer,
		notifier,
		notification.NewRedisDeduper(redisClient, cfg.Notification.DedupeTTL),
		retry.NewKafkaDLQPublisher(producer, serviceName),
		notification.DefaultConsumerConfig(),
	)
	if err := bookingConsumer.Start(ctx); err != nil {
		appLog.Fatal("Failed to start consumer", zap.Error(err))
	}
	appLog.Info("Notification Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	bookingConsumer.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	appLog.Info("Worker exited gracefully")
}
