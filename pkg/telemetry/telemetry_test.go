package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{ServiceName: "booking-service"})
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Meter())
	assert.NoError(t, Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestCounter_RecordsToMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	globalTelemetry = &Telemetry{meter: provider.Meter("test")}
	defer func() { globalTelemetry = nil }()

	c, err := NewCounter(MetricOpts{Name: "bookings_created_total", Description: "created"})
	require.NoError(t, err)
	c.Inc(context.Background())
	c.Add(context.Background(), 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	var c *Counter
	var h *Histogram
	var u *UpDownCounter
	c.Inc(context.Background())
	h.Record(context.Background(), 1)
	u.Add(context.Background(), -1)
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	globalTelemetry = &Telemetry{tracer: provider.Tracer("test")}
	defer func() {
		globalTelemetry = nil
		otel.SetTracerProvider(prev)
	}()

	r := gin.New()
	r.Use(TracingMiddleware("booking-service"))
	r.GET("/bookings/:id", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/abc", nil))

	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /bookings/:id", spans[0].Name)
	assert.Equal(t, "Error", spans[0].Status.Code.String())
}
