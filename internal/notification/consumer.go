package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/kafka"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/prohmpiriya/event-booking-saga/pkg/retry"
	"github.com/prohmpiriya/event-booking-saga/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RecordSource is the subset of the Kafka consumer the worker needs
type RecordSource interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
	Rewind(records []*kafka.Record)
}

// ConsumerConfig contains configuration for the booking event consumer
type ConsumerConfig struct {
	// RetryInterval is the fixed wait between delivery attempts
	RetryInterval time.Duration
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// PollBackoff is the pause after a failed poll or an uncommitted record
	PollBackoff time.Duration
}

// DefaultConsumerConfig returns default configuration
func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		RetryInterval: time.Second,
		MaxRetries:    2,
		PollBackoff:   time.Second,
	}
}

// BookingEventConsumer turns booking events into notifications. Each event is
// delivered at most once per dedupe window; deliveries that keep failing are
// moved to the dead letter topic and committed.
type BookingEventConsumer struct {
	source   RecordSource
	notifier Notifier
	deduper  Deduper
	dlq      *retry.DLQHandler
	config   *ConsumerConfig
	sent     *telemetry.Counter
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewBookingEventConsumer creates a new consumer
func NewBookingEventConsumer(
	source RecordSource,
	notifier Notifier,
	deduper Deduper,
	dlqPublisher retry.DLQPublisher,
	config *ConsumerConfig,
) *BookingEventConsumer {
	if config == nil {
		config = DefaultConsumerConfig()
	}
	if config.PollBackoff <= 0 {
		config.PollBackoff = time.Second
	}

	c := &BookingEventConsumer{
		source:   source,
		notifier: notifier,
		deduper:  deduper,
		config:   config,
		log:      logger.Get(),
		stopCh:   make(chan struct{}),
	}
	c.dlq = retry.NewDLQHandler(dlqPublisher, &retry.DLQHandlerConfig{
		RetryConfig: retry.FixedConfig(config.RetryInterval, config.MaxRetries),
		Source:      "notification-worker",
		OnDLQ: func(msg *retry.DLQMessage) {
			c.log.Error("Notification moved to dead letter topic",
				zap.String("event_id", msg.ID),
				zap.String("topic", msg.OriginalTopic),
				zap.Int("attempts", msg.Attempts),
				zap.String("error", msg.Error),
			)
		},
	})

	var err error
	c.sent, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "notifications_total",
		Description: "Booking notifications by event type and outcome",
		Unit:        "1",
	})
	if err != nil {
		c.log.Warn("Failed to create notifications counter", zap.Error(err))
	}
	return c
}

// Start starts the poll loop
func (c *BookingEventConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("notification consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log.Info("Starting notification consumer")

	c.wg.Add(1)
	go c.poll(ctx)
	return nil
}

// Stop stops the poll loop and waits for the batch in flight
func (c *BookingEventConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.log.Info("Stopping notification consumer")
	close(c.stopCh)
	c.wg.Wait()
	c.log.Info("Notification consumer stopped")
}

func (c *BookingEventConsumer) poll(ctx context.Context) {
	defer c.wg.Done()

	// Poll blocks, so stopping cancels it
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	for {
		select {
		case <-pollCtx.Done():
			return
		default:
		}

		records, err := c.source.Poll(pollCtx)
		if err != nil {
			if pollCtx.Err() != nil || errors.Is(err, kafka.ErrConsumerClosed) {
				return
			}
			c.log.Error("Failed to poll booking events", zap.Error(err))
			select {
			case <-time.After(c.config.PollBackoff):
			case <-pollCtx.Done():
				return
			}
			continue
		}

		if err := c.ProcessBatch(context.WithoutCancel(pollCtx), records); err != nil {
			select {
			case <-time.After(c.config.PollBackoff):
			case <-pollCtx.Done():
				return
			}
		}
	}
}

// ProcessBatch handles records in order and commits the ones that are done.
// It stops at the first record that could be neither delivered nor dead-lettered
// and rewinds the source to it, so that record and the rest of the batch are
// polled again instead of being skipped by the next commit.
func (c *BookingEventConsumer) ProcessBatch(ctx context.Context, records []*kafka.Record) error {
	done := make([]*kafka.Record, 0, len(records))
	var failed error
	for i, record := range records {
		if err := c.HandleRecord(ctx, record); err != nil {
			c.log.Error("Booking event left uncommitted, rewinding",
				zap.String("topic", record.Topic),
				zap.Int32("partition", record.Partition),
				zap.Int64("offset", record.Offset),
				zap.Int("remaining", len(records)-i),
				zap.Error(err),
			)
			c.source.Rewind(records[i:])
			failed = err
			break
		}
		done = append(done, record)
	}

	if len(done) > 0 {
		if err := c.source.CommitRecords(ctx, done); err != nil {
			c.log.Error("Failed to commit booking events", zap.Int("count", len(done)), zap.Error(err))
		}
	}
	return failed
}

// HandleRecord delivers the notification for one record. A nil error means the
// record can be committed: it was delivered, skipped or dead-lettered.
func (c *BookingEventConsumer) HandleRecord(ctx context.Context, record *kafka.Record) error {
	ctx = kafka.ExtractTraceContext(ctx, record)
	ctx, span := telemetry.StartSpan(ctx, "notification.handle")
	defer span.End()

	msgCtx := &retry.MessageContext{
		ID:      record.Header("event_id"),
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: json.RawMessage(record.Value),
		Headers: record.Headers,
	}
	if msgCtx.ID == "" {
		msgCtx.ID = fmt.Sprintf("%s-%d-%d", record.Topic, record.Partition, record.Offset)
	}

	var evt domain.BookingEvent
	if err := json.Unmarshal(record.Value, &evt); err != nil {
		// Poison message: straight to the dead letter topic
		return c.finish(ctx, span, "unknown", c.dlq.ProcessWithDLQ(ctx, msgCtx, func(context.Context) error {
			return retry.Permanent(fmt.Errorf("invalid booking event payload: %w", err))
		}))
	}

	eventType := domain.BookingEventType(record.Header("event_type"))
	if eventType == "" {
		eventType = evt.EventType
	}
	evt.EventType = eventType
	if evt.EventID != "" && record.Header("event_id") == "" {
		msgCtx.ID = evt.EventID
	}

	span.SetAttributes(
		attribute.String("event_id", msgCtx.ID),
		attribute.String("event_type", string(eventType)),
		attribute.String("booking_id", evt.BookingID),
	)
	log := c.log.WithContext(ctx).With(
		zap.String("event_id", msgCtx.ID),
		zap.String("event_type", string(eventType)),
		zap.String("booking_id", evt.BookingID),
	)

	if eventType != domain.BookingEventConfirmed && eventType != domain.BookingEventCancelled {
		log.Debug("Skipping unsupported booking event")
		c.sent.Inc(ctx, attribute.String("event_type", string(eventType)), attribute.String("outcome", "skipped"))
		return nil
	}

	seen, err := c.deduper.Seen(ctx, msgCtx.ID)
	if err != nil {
		// Redis down: deliver anyway, a duplicate mail beats a lost one
		log.Warn("Notification dedupe unavailable", zap.Error(err))
	}
	if seen {
		log.Info("Duplicate booking event ignored")
		c.sent.Inc(ctx, attribute.String("event_type", string(eventType)), attribute.String("outcome", "duplicate"))
		return nil
	}

	msg, err := Compose(&evt)
	if err != nil {
		return c.finish(ctx, span, string(eventType), err)
	}

	err = c.dlq.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		sendErr := c.notifier.Send(ctx, msg)
		if errors.Is(sendErr, ErrNoRecipient) {
			return retry.Permanent(sendErr)
		}
		return sendErr
	})
	if err != nil && !errors.Is(err, retry.ErrMovedToDLQ) {
		if forgetErr := c.deduper.Forget(ctx, msgCtx.ID); forgetErr != nil {
			log.Warn("Failed to clear dedupe mark", zap.Error(forgetErr))
		}
	}
	if err == nil {
		log.Info("Notification sent", zap.String("to", msg.To))
	}
	return c.finish(ctx, span, string(eventType), err)
}

func (c *BookingEventConsumer) finish(ctx context.Context, span trace.Span, eventType string, err error) error {
	switch {
	case err == nil:
		c.sent.Inc(ctx, attribute.String("event_type", eventType), attribute.String("outcome", "sent"))
		span.SetStatus(codes.Ok, "")
		return nil
	case errors.Is(err, retry.ErrMovedToDLQ):
		c.sent.Inc(ctx, attribute.String("event_type", eventType), attribute.String("outcome", "dead_lettered"))
		span.SetStatus(codes.Error, "moved to dead letter topic")
		return nil
	default:
		c.sent.Inc(ctx, attribute.String("event_type", eventType), attribute.String("outcome", "failed"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}
