package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts describes an instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter is a monotonic counter
type Counter struct {
	inner metric.Int64Counter
}

// Histogram records distributions of float values
type Histogram struct {
	inner metric.Float64Histogram
}

// UpDownCounter can go up and down, e.g. in-flight work
type UpDownCounter struct {
	inner metric.Int64UpDownCounter
}

func meter() metric.Meter {
	if globalTelemetry != nil && globalTelemetry.meter != nil {
		return globalTelemetry.meter
	}
	return otel.Meter("")
}

// NewCounter creates a counter on the global meter
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{inner: c}, nil
}

// NewHistogram creates a histogram on the global meter
func NewHistogram(opts MetricOpts) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{inner: h}, nil
}

// NewUpDownCounter creates an up-down counter on the global meter
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	u, err := meter().Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &UpDownCounter{inner: u}, nil
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Record records v
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil || h.inner == nil {
		return
	}
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Add adds n, which may be negative
func (u *UpDownCounter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if u == nil || u.inner == nil {
		return
	}
	u.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// NewObservableGauge registers a gauge read from fn at each collection
func NewObservableGauge(opts MetricOpts, fn func() int64, attrs ...attribute.KeyValue) error {
	_, err := meter().Int64ObservableGauge(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(fn(), metric.WithAttributes(attrs...))
			return nil
		}),
	)
	return err
}
