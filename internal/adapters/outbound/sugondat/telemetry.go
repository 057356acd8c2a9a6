// telemetry.go provides OpenTelemetry instrumentation for the sugondat client.
//
// Metrics:
//   - sugondat.client.request.duration: Histogram of RPC request latencies
//   - sugondat.client.requests.total: Counter of RPC requests by method/status
//   - sugondat.client.retries.total: Counter of retried operations
//   - sugondat.connector.reconnections.total: Counter of connection resets
//   - sugondat.finality.height: Gauge of the latest finalized block number
//   - sugondat.submit.total: Counter of blob submissions by outcome
//
// A nil *Telemetry is valid and records nothing.
package sugondat

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// instrumentationName is the name used for OpenTelemetry instrumentation.
	instrumentationName = "github.com/archon-research/sugondat-rpc/internal/adapters/outbound/sugondat"
)

// Telemetry provides OpenTelemetry metrics and tracing for the client.
type Telemetry struct {
	tracer trace.Tracer

	requestDuration    metric.Float64Histogram
	requestsTotal      metric.Int64Counter
	retriesTotal       metric.Int64Counter
	reconnectionsTotal metric.Int64Counter
	finalizedHeight    metric.Int64Gauge
	submissionsTotal   metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance using the global tracer and
// meter providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(
		otel.GetTracerProvider(),
		otel.GetMeterProvider(),
	)
}

// NewTelemetryWithProviders creates a Telemetry instance with custom providers.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.requestDuration, err = meter.Float64Histogram(
		"sugondat.client.request.duration",
		metric.WithDescription("Duration of RPC requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	t.requestsTotal, err = meter.Int64Counter(
		"sugondat.client.requests.total",
		metric.WithDescription("Total number of RPC requests"),
	)
	if err != nil {
		return nil, err
	}

	t.retriesTotal, err = meter.Int64Counter(
		"sugondat.client.retries.total",
		metric.WithDescription("Total number of retried operations"),
	)
	if err != nil {
		return nil, err
	}

	t.reconnectionsTotal, err = meter.Int64Counter(
		"sugondat.connector.reconnections.total",
		metric.WithDescription("Total number of connection resets"),
	)
	if err != nil {
		return nil, err
	}

	t.finalizedHeight, err = meter.Int64Gauge(
		"sugondat.finality.height",
		metric.WithDescription("Latest finalized block number"),
	)
	if err != nil {
		return nil, err
	}

	t.submissionsTotal, err = meter.Int64Counter(
		"sugondat.submit.total",
		metric.WithDescription("Total number of blob submissions"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// StartSpan starts a client span for a public operation.
func (t *Telemetry) StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "sugondat."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "jsonrpc")),
	)
}

// RecordRequest records metrics for one RPC request.
func (t *Telemetry) RecordRequest(ctx context.Context, method string, duration time.Duration, err error) {
	if t == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("status", status),
	)
	t.requestDuration.Record(ctx, duration.Seconds(), attrs)
	t.requestsTotal.Add(ctx, 1, attrs)
}

// RecordRetry records a retried operation.
func (t *Telemetry) RecordRetry(ctx context.Context, method string) {
	if t == nil {
		return
	}
	t.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rpc.method", method)))
}

// RecordReconnection records a connection reset.
func (t *Telemetry) RecordReconnection(ctx context.Context) {
	if t == nil {
		return
	}
	t.reconnectionsTotal.Add(ctx, 1)
}

// RecordFinalizedHeight records the latest finalized block number.
func (t *Telemetry) RecordFinalizedHeight(ctx context.Context, height uint64) {
	if t == nil {
		return
	}
	t.finalizedHeight.Record(ctx, int64(height))
}

// RecordSubmission records the outcome of a blob submission.
func (t *Telemetry) RecordSubmission(ctx context.Context, err error) {
	if t == nil {
		return
	}
	status := "finalized"
	if err != nil {
		status = "error"
	}
	t.submissionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
