package sugondat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/archon-research/sugondat-rpc/internal/pkg/hexutil"
	"github.com/archon-research/sugondat-rpc/internal/pkg/watch"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

const (
	methodSubscribeFinalizedHeads   = "chain_subscribeFinalizedHeads"
	methodUnsubscribeFinalizedHeads = "chain_unsubscribeFinalizedHeads"
)

// FinalizedHead is the latest finalized block seen on a connection.
type FinalizedHead struct {
	Number uint64
	Hash   [32]byte
}

// finalityWatcher follows the node's finalized heads for one connection and
// keeps only the most recent one. It runs until its stream ends or its
// context is cancelled and is never restarted; a new connection gets a new
// watcher.
type finalityWatcher struct {
	head      *watch.Value[FinalizedHead]
	done      chan struct{}
	logger    *slog.Logger
	telemetry *Telemetry
}

func startFinalityWatcher(ctx context.Context, transport outbound.RPCTransport, logger *slog.Logger, telemetry *Telemetry) *finalityWatcher {
	w := &finalityWatcher{
		head:      watch.NewValue(FinalizedHead{}),
		done:      make(chan struct{}),
		logger:    logger.With("component", "finality-watcher"),
		telemetry: telemetry,
	}
	go w.run(ctx, transport)
	return w
}

func (w *finalityWatcher) run(ctx context.Context, transport outbound.RPCTransport) {
	defer close(w.done)
	defer w.head.Close()

	sub, err := transport.Subscribe(ctx, methodSubscribeFinalizedHeads, methodUnsubscribeFinalizedHeads)
	if err != nil {
		w.logger.Warn("failed to subscribe to finalized heads", "error", err)
		return
	}
	defer sub.Close()

	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("finalized head stream ended", "error", err)
			}
			return
		}
		if err := w.handleHeader(ctx, raw); err != nil {
			w.logger.Warn("stopping on malformed finalized head", "error", err)
			return
		}
	}
}

func (w *finalityWatcher) handleHeader(ctx context.Context, raw json.RawMessage) error {
	var rendered rpcHeader
	if err := json.Unmarshal(raw, &rendered); err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}
	header, err := rendered.decode()
	if err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}

	number := uint64(header.Number)
	if current, version := w.head.Load(); version > 0 && number < current.Number {
		w.logger.Debug("ignoring finalized head below current", "number", number, "current", current.Number)
		return nil
	}

	hash, err := headerHash(header)
	if err != nil {
		return err
	}
	head := FinalizedHead{Number: number, Hash: hash}
	w.head.Publish(head)
	w.telemetry.RecordFinalizedHeight(ctx, number)
	w.logger.Debug("finalized head", "number", number, "hash", hexutil.TruncateHash(head.Hash))
	return nil
}

// waitUntilFinalized blocks until a head at or above height has been
// published. ok is false if the watcher has terminated first.
func (w *finalityWatcher) waitUntilFinalized(ctx context.Context, height uint64) (head FinalizedHead, ok bool, err error) {
	head, err = w.head.Wait(ctx, func(h FinalizedHead) bool {
		return h.Number >= height
	})
	if errors.Is(err, watch.ErrClosed) {
		return FinalizedHead{}, false, nil
	}
	if err != nil {
		return FinalizedHead{}, false, err
	}
	return head, true, nil
}

// latest returns the most recent finalized head, if any has been seen.
func (w *finalityWatcher) latest() (FinalizedHead, bool) {
	head, version := w.head.Load()
	return head, version > 0
}
