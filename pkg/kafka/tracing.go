package kafka

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceHeaders returns a copy of headers carrying the W3C trace context of ctx
func InjectTraceHeaders(ctx context.Context, headers map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	for k, v := range headers {
		carrier[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// ExtractTraceContext returns ctx enriched with the trace context found in the record headers
func ExtractTraceContext(ctx context.Context, r *Record) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(r.Headers))
}
