package outbound

import (
	"context"
	"time"
)

// BlockMetricsRecorder records how finalized blocks are processed by a
// follower, without depending on a specific telemetry implementation.
type BlockMetricsRecorder interface {
	// RecordBlockProcessed counts one finalized block by outcome.
	RecordBlockProcessed(ctx context.Context, status string)

	// RecordProcessingLatency records how long fetching and handling a
	// finalized block took.
	RecordProcessingLatency(ctx context.Context, duration time.Duration, status string)

	// RecordBlobsSeen counts the blobs found in a processed block.
	RecordBlobsSeen(ctx context.Context, count int)
}
