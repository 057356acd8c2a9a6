// Package main follows finalized sugondat blocks and logs the blobs they carry.
//
// Configuration is read from the environment:
//
//	SUGONDAT_RPC_URL             node WebSocket endpoint (default ws://127.0.0.1:9944)
//	START_HEIGHT                 first block to inspect (default 1)
//	NAMESPACE                    only log blobs in this namespace id (optional)
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector for traces and metrics (optional)
//	TRACE_STDOUT                 write spans to stdout when no collector is set
//	LOG_LEVEL                    slog level (default info)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/sugondat"
	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/telemetry"
	"github.com/archon-research/sugondat-rpc/internal/domain/entity"
	"github.com/archon-research/sugondat-rpc/internal/pkg/env"
	"github.com/archon-research/sugondat-rpc/internal/pkg/hexutil"
	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

const serviceName = "blobwatch"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("blobwatch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, logger *slog.Logger) error {
	rpcURL := env.Get("SUGONDAT_RPC_URL", "ws://127.0.0.1:9944")
	start, err := env.GetUint64("START_HEIGHT", 1)
	if err != nil {
		return err
	}
	filter, err := namespaceFilter(env.Get("NAMESPACE", ""))
	if err != nil {
		return err
	}

	shutdown, err := initTelemetry(ctx, env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""), env.Get("TRACE_STDOUT", "") == "true")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	tel, err := sugondat.NewTelemetry()
	if err != nil {
		return fmt.Errorf("failed to create telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	client, err := sugondat.New(ctx, sugondat.Config{
		URL:       rpcURL,
		Telemetry: tel,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	return follow(ctx, client, metrics, start, client.SS58Prefix(), filter, logger)
}

// follow inspects every finalized block from start onwards until ctx is done.
func follow(ctx context.Context, client outbound.BlobClient, metrics outbound.BlockMetricsRecorder, start uint64, prefix uint16, filter func(nmt.Namespace) bool, logger *slog.Logger) error {
	for height := start; ; height++ {
		hash, err := client.WaitFinalizedHeight(ctx, height)
		if err != nil {
			return err
		}

		began := time.Now()
		block, err := client.GetBlockAt(ctx, hash)
		if err != nil {
			metrics.RecordBlockProcessed(ctx, "error")
			metrics.RecordProcessingLatency(ctx, time.Since(began), "error")
			return fmt.Errorf("block %d: %w", height, err)
		}

		logger.Debug("finalized block",
			"number", block.Number,
			"hash", hexutil.TruncateHash(hash),
			"timestamp", block.Timestamp,
			"namespaces", fmt.Sprintf("%s..%s", block.TreeRoot.MinNamespace(), block.TreeRoot.MaxNamespace()),
			"blobs", len(block.Blobs))
		logBlobs(block, prefix, filter, logger)

		metrics.RecordBlockProcessed(ctx, "success")
		metrics.RecordBlobsSeen(ctx, len(block.Blobs))
		metrics.RecordProcessingLatency(ctx, time.Since(began), "success")
	}
}

func logBlobs(block *entity.Block, prefix uint16, filter func(nmt.Namespace) bool, logger *slog.Logger) {
	for _, blob := range block.Blobs {
		if !filter(blob.Namespace) {
			continue
		}
		sender, err := blob.SenderAddress(prefix)
		if err != nil {
			sender = hexutil.FormatHash(blob.Sender)
		}
		digest := blob.Sha2Hash()
		logger.Info("blob",
			"block", block.Number,
			"index", blob.ExtrinsicIndex,
			"namespace", blob.Namespace,
			"sender", sender,
			"size", len(blob.Data),
			"sha256", hexutil.FormatHash(digest))
	}
}

func namespaceFilter(raw string) (func(nmt.Namespace) bool, error) {
	if raw == "" {
		return func(nmt.Namespace) bool { return true }, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid NAMESPACE %q: %w", raw, err)
	}
	want := nmt.NamespaceFromUint32BE(uint32(id))
	return func(ns nmt.Namespace) bool { return ns == want }, nil
}

func initTelemetry(ctx context.Context, endpoint string, traceStdout bool) (func(context.Context) error, error) {
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: endpoint,
	})
	if err != nil {
		return nil, err
	}
	if endpoint == "" && !traceStdout {
		return shutdownMetrics, nil
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: endpoint,
	})
	if err != nil {
		_ = shutdownMetrics(ctx)
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(shutdownTracer(ctx), shutdownMetrics(ctx))
	}, nil
}
