// Package sugondat provides a data-availability client for a sugondat node.
//
// The client hides connection concerns: it reconnects automatically after
// network failures, so query methods retry until they succeed or their
// context is done. The node is assumed to be honest and generally
// well-behaved.
package sugondat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/sugondat-rpc/internal/domain/entity"
	"github.com/archon-research/sugondat-rpc/internal/pkg/hexutil"
	"github.com/archon-research/sugondat-rpc/internal/pkg/retry"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.BlobClient
var _ outbound.BlobClient = (*Client)(nil)

const (
	methodGetBlockHash      = "chain_getBlockHash"
	methodGetBlock          = "chain_getBlock"
	methodGetRuntimeVersion = "state_getRuntimeVersion"
	methodAccountNextIndex  = "system_accountNextIndex"
)

// Client is a resilient sugondat RPC client. It is safe for concurrent use;
// all callers share one connection.
type Client struct {
	config    Config
	layout    RuntimeLayout
	connector *connector
	logger    *slog.Logger
	telemetry *Telemetry
}

// New validates config and connects to the node. A malformed URL is reported
// immediately; connection failures are retried until ctx is done.
func New(ctx context.Context, config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()

	logger := config.Logger.With("component", "sugondat-client")
	c := &Client{
		config:    config,
		layout:    *config.Layout,
		connector: newConnector(config.URL, config.Dialer, logger, config.Telemetry),
		logger:    logger,
		telemetry: config.Telemetry,
	}

	logger.Info("connecting to sugondat node", "url", config.URL)
	if _, err := c.connector.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", config.URL, err)
	}
	return c, nil
}

// Close releases the connection. Operations started afterwards fail with
// ErrClientClosed.
func (c *Client) Close() error {
	return c.connector.close()
}

// SS58Prefix returns the network prefix used for account addresses.
func (c *Client) SS58Prefix() uint16 {
	return c.config.SS58Prefix
}

// LatestFinalized returns the most recent finalized head seen on the current
// connection. ok is false if there is no connection or no head yet.
func (c *Client) LatestFinalized() (head FinalizedHead, ok bool) {
	conn := c.connector.currentConnection()
	if conn == nil {
		return FinalizedHead{}, false
	}
	return conn.finality.latest()
}

// BlockHash returns the hash of the block at height, or ok=false if the node
// has no block there.
func (c *Client) BlockHash(ctx context.Context, height uint64) ([32]byte, bool, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "BlockHash")
	defer span.End()

	type lookup struct {
		hash [32]byte
		ok   bool
	}
	res, err := withConnection(ctx, c, methodGetBlockHash, func(ctx context.Context, conn *connection) (lookup, error) {
		var raw *common.Hash
		if err := c.call(ctx, conn, &raw, methodGetBlockHash, height); err != nil {
			return lookup{}, err
		}
		hash, ok := normalizeBlockHash(raw)
		return lookup{hash: hash, ok: ok}, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return [32]byte{}, false, err
	}
	return res.hash, res.ok, nil
}

// normalizeBlockHash maps a chain_getBlockHash result to (hash, found).
//
// Node quirk: besides null, the node answers with the all-zero hash when there
// is no block at the requested height.
func normalizeBlockHash(raw *common.Hash) ([32]byte, bool) {
	if raw == nil || *raw == (common.Hash{}) {
		return [32]byte{}, false
	}
	return *raw, true
}

// WaitFinalizedHeight blocks until the block at height is finalized and
// returns its hash. Connection loss while waiting is absorbed.
func (c *Client) WaitFinalizedHeight(ctx context.Context, height uint64) ([32]byte, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "WaitFinalizedHeight")
	defer span.End()

	for {
		conn, err := c.connector.ensureConnected(ctx)
		if err != nil {
			recordSpanError(span, err)
			return [32]byte{}, err
		}

		head, ok, err := conn.finality.waitUntilFinalized(ctx, height)
		if err != nil {
			recordSpanError(span, err)
			return [32]byte{}, err
		}
		if !ok {
			c.logger.Warn("finality watcher terminated, reconnecting", "height", height)
			c.connector.reset(conn)
			continue
		}

		if head.Number == height {
			return head.Hash, nil
		}

		// Finality is already past height; look the block up by number.
		for {
			hash, found, err := c.BlockHash(ctx, height)
			if err != nil {
				recordSpanError(span, err)
				return [32]byte{}, err
			}
			if found {
				return hash, nil
			}
		}
	}
}

// GetBlockAt fetches the block with the given hash and extracts its tree
// root, timestamp and blobs.
//
// ErrBlockNotFound, ErrNoTreeRoot and ErrNoTimestamp are returned wrapped
// and are not retried.
func (c *Client) GetBlockAt(ctx context.Context, blockHash [32]byte) (*entity.Block, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "GetBlockAt")
	defer span.End()

	hashHex := hexutil.FormatHash(blockHash)
	block, err := withConnection(ctx, c, methodGetBlock, func(ctx context.Context, conn *connection) (*entity.Block, error) {
		var signed *rpcSignedBlock
		if err := c.call(ctx, conn, &signed, methodGetBlock, hashHex); err != nil {
			return nil, err
		}
		if signed == nil {
			return nil, retry.Permanent(fmt.Errorf("block %s: %w", hashHex, ErrBlockNotFound))
		}

		block, err := buildBlock(&signed.Block, c.layout)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("block %s: %w", hashHex, err))
		}
		return block, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	c.logger.Debug("fetched block", "number", block.Number, "hash", hexutil.TruncateHash(blockHash), "blobs", len(block.Blobs))
	return block, nil
}

// withConnection runs fn against the live connection until it succeeds or
// returns a permanent error. Any other failure resets the connection first.
func withConnection[T any](ctx context.Context, c *Client, method string, fn func(ctx context.Context, conn *connection) (T, error)) (T, error) {
	onRetry := func(attempt int, err error) {
		c.logger.Warn("request failed, retrying", "method", method, "attempt", attempt, "error", err)
		c.telemetry.RecordRetry(ctx, method)
	}
	return retry.UntilSuccess(ctx, onRetry, func(ctx context.Context) (T, error) {
		var zero T
		conn, err := c.connector.ensureConnected(ctx)
		if err != nil {
			return zero, retry.Permanent(err)
		}

		v, err := fn(ctx, conn)
		if err != nil && !retry.IsPermanent(err) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, retry.Permanent(ctxErr)
			}
			c.connector.reset(conn)
		}
		return v, err
	})
}

// call performs one request on conn and records its latency.
func (c *Client) call(ctx context.Context, conn *connection, result any, method string, params ...any) error {
	start := time.Now()
	err := conn.transport.Call(ctx, result, method, params...)
	c.telemetry.RecordRequest(ctx, method, time.Since(start), err)
	return err
}
