package sugondat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common"
	gethhex "github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/wsrpc"
	"github.com/archon-research/sugondat-rpc/internal/pkg/hexutil"
	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
	"github.com/archon-research/sugondat-rpc/internal/pkg/retry"
	"github.com/archon-research/sugondat-rpc/internal/pkg/ss58"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

const (
	methodSubmitAndWatch = "author_submitAndWatchExtrinsic"
	methodUnwatch        = "author_unwatchExtrinsic"
)

// SubmitBlob submits data under ns, signed by signer, and waits until the
// extrinsic is finalized. It returns the hash of the block that includes it.
//
// Submission is best effort and is not retried. An error does not prove the
// blob was not included. Every error wraps ErrSubmissionFailed.
//
// Success means the node reported the finalized status only. Dispatch events
// are not inspected, so an extrinsic that was finalized with ExtrinsicFailed
// still returns its block hash.
func (c *Client) SubmitBlob(ctx context.Context, data []byte, ns nmt.Namespace, signer outbound.Signer) ([32]byte, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "SubmitBlob")
	defer span.End()

	hash, err := c.submitBlob(ctx, data, ns, signer)
	c.telemetry.RecordSubmission(ctx, err)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		recordSpanError(span, err)
		return [32]byte{}, err
	}

	c.logger.Info("blob finalized", "namespace", ns, "size", len(data), "block", hexutil.TruncateHash(hash))
	return hash, nil
}

func (c *Client) submitBlob(ctx context.Context, data []byte, ns nmt.Namespace, signer outbound.Signer) ([32]byte, error) {
	conn, err := c.connector.ensureConnected(ctx)
	if err != nil {
		return [32]byte{}, err
	}

	hash, err := c.signAndWatch(ctx, conn, data, ns, signer)
	if err != nil && isTransportFailure(ctx, err) {
		c.connector.reset(conn)
	}
	return hash, err
}

func (c *Client) signAndWatch(ctx context.Context, conn *connection, data []byte, ns nmt.Namespace, signer outbound.Signer) ([32]byte, error) {
	args, err := encodeSubmitBlob(ns.ToUint32BE(), data)
	if err != nil {
		return [32]byte{}, retry.Permanent(err)
	}
	call := newCall(c.layout.BlobsPallet, c.layout.BlobsSubmitBlob, args)

	extrinsic, err := c.buildSignedExtrinsic(ctx, conn, call, signer)
	if err != nil {
		return [32]byte{}, err
	}

	sub, err := conn.transport.Subscribe(ctx, methodSubmitAndWatch, methodUnwatch, gethhex.Encode(extrinsic))
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to submit extrinsic: %w", err)
	}
	defer sub.Close()

	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return [32]byte{}, fmt.Errorf("watching extrinsic: %w", err)
		}
		status, err := parseTxStatus(raw)
		if err != nil {
			return [32]byte{}, err
		}

		switch status.kind {
		case txFinalized:
			return status.blockHash, nil
		case txFuture, txReady, txBroadcast, txRetracted:
			c.logger.Debug("extrinsic status", "status", status.kind)
		case txInBlock:
			c.logger.Debug("extrinsic in block", "block", hexutil.TruncateHash(status.blockHash))
		default:
			return [32]byte{}, retry.Permanent(fmt.Errorf("%w: %s", errExtrinsicNotFinalized, status.kind))
		}
	}
}

// buildSignedExtrinsic builds and signs an immortal extrinsic for call using
// the node's current runtime version, genesis hash and the signer's next nonce.
func (c *Client) buildSignedExtrinsic(ctx context.Context, conn *connection, call types.Call, signer outbound.Signer) ([]byte, error) {
	var version rpcRuntimeVersion
	if err := c.call(ctx, conn, &version, methodGetRuntimeVersion); err != nil {
		return nil, fmt.Errorf("fetching runtime version: %w", err)
	}

	var genesis *common.Hash
	if err := c.call(ctx, conn, &genesis, methodGetBlockHash, 0); err != nil {
		return nil, fmt.Errorf("fetching genesis hash: %w", err)
	}
	if genesis == nil {
		return nil, retry.Permanent(errors.New("node returned no genesis hash"))
	}

	address, err := ss58.Encode(signer.PublicKey(), c.config.SS58Prefix)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	var nonce uint64
	if err := c.call(ctx, conn, &nonce, methodAccountNextIndex, address); err != nil {
		return nil, fmt.Errorf("fetching account nonce: %w", err)
	}

	extrinsic, err := signExtrinsic(call, signingOptions{
		nonce:       nonce,
		specVersion: version.SpecVersion,
		txVersion:   version.TransactionVersion,
		genesisHash: *genesis,
	}, signer)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return extrinsic, nil
}

// errExtrinsicNotFinalized is reported when the node drops the extrinsic
// before it is finalized.
var errExtrinsicNotFinalized = errors.New("extrinsic not finalized")

// isTransportFailure reports whether err means the connection should be
// replaced. Node rejections, local failures and caller cancellation do not.
func isTransportFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil || retry.IsPermanent(err) {
		return false
	}
	var rpcErr *wsrpc.RPCError
	return !errors.As(err, &rpcErr)
}

// Transaction status values reported by author_submitAndWatchExtrinsic.
const (
	txFuture          = "future"
	txReady           = "ready"
	txBroadcast       = "broadcast"
	txInBlock         = "inBlock"
	txRetracted       = "retracted"
	txFinalityTimeout = "finalityTimeout"
	txFinalized       = "finalized"
	txUsurped         = "usurped"
	txDropped         = "dropped"
	txInvalid         = "invalid"
)

type txStatus struct {
	kind      string
	blockHash [32]byte
}

// parseTxStatus decodes a status notification. Statuses are either a bare
// string ("ready") or a single-key object ({"inBlock": "0x.."}).
func parseTxStatus(raw json.RawMessage) (txStatus, error) {
	var kind string
	if err := json.Unmarshal(raw, &kind); err == nil {
		return txStatus{kind: kind}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return txStatus{}, unrecognisedStatus(raw)
	}
	for kind, value := range obj {
		status := txStatus{kind: kind}
		switch kind {
		case txInBlock, txRetracted, txFinalityTimeout, txFinalized:
			var hash common.Hash
			if err := json.Unmarshal(value, &hash); err != nil {
				return txStatus{}, unrecognisedStatus(raw)
			}
			status.blockHash = hash
		}
		return status, nil
	}
	return txStatus{}, unrecognisedStatus(raw)
}

func unrecognisedStatus(raw json.RawMessage) error {
	return retry.Permanent(fmt.Errorf("%w: unrecognised status %s", errExtrinsicNotFinalized, raw))
}
