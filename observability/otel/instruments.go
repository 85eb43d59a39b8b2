package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "homeescrow/rpc"

// Tracer returns the tracer used for JSON-RPC method spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Instruments holds the OTLP counterparts of the prometheus RPC metrics.
type Instruments struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments registers the RPC instruments against the global meter
// provider. It must run after Init so the configured provider is used.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("rpc.calls",
		metric.WithDescription("JSON-RPC calls by method and outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("rpc.duration",
		metric.WithDescription("JSON-RPC handler latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instruments{calls: calls, duration: duration}, nil
}

// Record adds one call observation. Nil receivers are ignored.
func (i *Instruments) Record(ctx context.Context, method string, failed bool, elapsed time.Duration) {
	if i == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("outcome", outcome),
	)
	i.calls.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("rpc.method", method)))
}
