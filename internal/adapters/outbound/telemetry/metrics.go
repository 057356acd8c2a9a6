package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

var _ outbound.BlockMetricsRecorder = (*Metrics)(nil)

// Metrics implements the BlockMetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	processingLatency metric.Float64Histogram
	blocksProcessed   metric.Int64Counter
	blobsSeen         metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry metrics recorder on the global meter
// provider. meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a metrics recorder on mp.
func NewMetricsWithProvider(mp metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := mp.Meter(meterName)

	latency, err := meter.Float64Histogram(
		"processing_duration_seconds",
		metric.WithDescription("Time taken to fetch and process a finalized block"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing_duration_seconds histogram: %w", err)
	}

	blocks, err := meter.Int64Counter(
		"blocks_processed_total",
		metric.WithDescription("Total number of finalized blocks processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks_processed_total counter: %w", err)
	}

	blobs, err := meter.Int64Counter(
		"blobs_seen_total",
		metric.WithDescription("Total number of blobs found in processed blocks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blobs_seen_total counter: %w", err)
	}

	return &Metrics{
		processingLatency: latency,
		blocksProcessed:   blocks,
		blobsSeen:         blobs,
	}, nil
}

// RecordProcessingLatency records the duration of block processing.
func (m *Metrics) RecordProcessingLatency(ctx context.Context, duration time.Duration, status string) {
	m.processingLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordBlockProcessed increments the blocks processed counter.
func (m *Metrics) RecordBlockProcessed(ctx context.Context, status string) {
	m.blocksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBlobsSeen adds count to the blobs seen counter.
func (m *Metrics) RecordBlobsSeen(ctx context.Context, count int) {
	m.blobsSeen.Add(ctx, int64(count))
}
