package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestToRecordHeaders(t *testing.T) {
	assert.Nil(t, toRecordHeaders(nil))

	hs := toRecordHeaders(map[string]string{"event_type": "BookingConfirmed"})
	require.Len(t, hs, 1)
	assert.Equal(t, "event_type", hs[0].Key)
	assert.Equal(t, []byte("BookingConfirmed"), hs[0].Value)
}

func TestFromKgo(t *testing.T) {
	ts := time.Now()
	raw := &kgo.Record{
		Topic:     "booking-events",
		Partition: 2,
		Offset:    42,
		Key:       []byte("b-1"),
		Value:     []byte(`{}`),
		Headers:   []kgo.RecordHeader{{Key: "event_id", Value: []byte("e-1")}},
		Timestamp: ts,
	}

	r := fromKgo(raw)
	assert.Equal(t, "booking-events", r.Topic)
	assert.Equal(t, int32(2), r.Partition)
	assert.Equal(t, int64(42), r.Offset)
	assert.Equal(t, "e-1", r.Header("event_id"))
	assert.Equal(t, "", r.Header("missing"))
	assert.Same(t, raw, r.raw)
}

func TestRewindOffsets_EarliestPerPartition(t *testing.T) {
	offsets := rewindOffsets([]*Record{
		{Topic: "booking-events", Partition: 0, Offset: 7},
		{Topic: "booking-events", Partition: 1, Offset: 3},
		{Topic: "booking-events", Partition: 0, Offset: 8},
		fromKgo(&kgo.Record{Topic: "booking-events", Partition: 1, Offset: 2, LeaderEpoch: 4}),
	})

	require.Len(t, offsets, 1)
	assert.Equal(t, kgo.EpochOffset{Epoch: -1, Offset: 7}, offsets["booking-events"][0])
	assert.Equal(t, kgo.EpochOffset{Epoch: 4, Offset: 2}, offsets["booking-events"][1])
	assert.Empty(t, rewindOffsets(nil))
}

func TestTraceHeaders_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	in := map[string]string{"event_type": "BookingCancelled"}
	headers := InjectTraceHeaders(ctx, in)

	assert.Equal(t, "BookingCancelled", headers["event_type"])
	assert.NotEmpty(t, headers["traceparent"])
	assert.NotContains(t, in, "traceparent", "input map must not be mutated")

	out := ExtractTraceContext(context.Background(), &Record{Headers: headers})
	assert.Equal(t, traceID, trace.SpanContextFromContext(out).TraceID())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)
}

func TestNewConsumer_RequiresGroupAndTopics(t *testing.T) {
	_, err := NewConsumer(context.Background(), &ConsumerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
