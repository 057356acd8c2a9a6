// extract.go turns a node's header and extrinsic list into an entity.Block.
package sugondat

import (
	"bytes"
	"fmt"
	"math"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/archon-research/sugondat-rpc/internal/domain/entity"
	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
)

// treeRootPrefix marks the digest item that carries the namespaced merkle tree root.
var treeRootPrefix = []byte("snmt")

// decode converts the node's rendering of a header into its SCALE type.
func (h *rpcHeader) decode() (types.Header, error) {
	if uint64(h.Number) > math.MaxUint32 {
		return types.Header{}, fmt.Errorf("block number %d does not fit in 32 bits", uint64(h.Number))
	}
	digest := make(types.Digest, len(h.Digest.Logs))
	for i, log := range h.Digest.Logs {
		if err := codec.Decode(log, &digest[i]); err != nil {
			return types.Header{}, fmt.Errorf("decoding digest item %d: %w", i, err)
		}
	}
	return types.Header{
		ParentHash:     types.Hash(h.ParentHash),
		Number:         types.BlockNumber(h.Number),
		StateRoot:      types.Hash(h.StateRoot),
		ExtrinsicsRoot: types.Hash(h.ExtrinsicsRoot),
		Digest:         digest,
	}, nil
}

// headerHash returns the block hash: blake2b-256 of the SCALE-encoded header.
func headerHash(h types.Header) ([32]byte, error) {
	enc, err := codec.Encode(h)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encoding header: %w", err)
	}
	return blake2b.Sum256(enc), nil
}

// treeRoot returns the tree root committed in the digest. It reports false if
// there is none or if the first one found is malformed.
func treeRoot(digest types.Digest) (nmt.TreeRoot, bool) {
	for _, item := range digest {
		if !item.IsOther || !bytes.HasPrefix(item.AsOther, treeRootPrefix) {
			continue
		}
		raw := item.AsOther[len(treeRootPrefix):]
		if len(raw) != nmt.TreeRootSize {
			return nmt.TreeRoot{}, false
		}
		return nmt.TreeRootFromRawBytes([nmt.TreeRootSize]byte(raw)), true
	}
	return nmt.TreeRoot{}, false
}

// extractTimestamp returns the argument of the first Timestamp.set call.
// Every block carries one as a mandatory inherent.
func extractTimestamp(extrinsics []hexutil.Bytes, layout RuntimeLayout) (uint64, error) {
	for _, raw := range extrinsics {
		xt, err := decodeExtrinsic(raw)
		if err != nil || !isCall(xt, layout.TimestampPallet, layout.TimestampSet) {
			continue
		}
		var now types.UCompact
		if err := decodeArgs(xt.Method.Args, &now); err != nil {
			continue
		}
		timestamp, err := compactToUint64(now)
		if err != nil {
			continue
		}
		return timestamp, nil
	}
	return 0, ErrNoTimestamp
}

// extractBlobs returns a Blob for every signed submit_blob extrinsic.
// Extrinsics that do not decode as one are skipped.
func extractBlobs(extrinsics []hexutil.Bytes, layout RuntimeLayout) []entity.Blob {
	var blobs []entity.Blob
	for i, raw := range extrinsics {
		xt, err := decodeExtrinsic(raw)
		if err != nil || !isCall(xt, layout.BlobsPallet, layout.BlobsSubmitBlob) {
			continue
		}
		sender, ok := senderAccount(xt)
		if !ok {
			continue
		}
		var args submitBlobArgs
		if err := decodeArgs(xt.Method.Args, &args); err != nil {
			continue
		}

		blobs = append(blobs, entity.Blob{
			ExtrinsicIndex: uint32(i),
			Namespace:      nmt.NamespaceFromUint32BE(uint32(args.NamespaceID)),
			Sender:         sender,
			Data:           args.Blob,
		})
	}
	return blobs
}

// submitBlobArgs are the arguments of submit_blob(namespace_id: u32, blob: Vec<u8>).
type submitBlobArgs struct {
	NamespaceID types.U32
	Blob        types.Bytes
}

func encodeSubmitBlob(namespaceID uint32, data []byte) ([]byte, error) {
	return codec.Encode(submitBlobArgs{
		NamespaceID: types.NewU32(namespaceID),
		Blob:        types.NewBytes(data),
	})
}

// buildBlock assembles the domain block from a chain_getBlock result.
func buildBlock(b *rpcBlock, layout RuntimeLayout) (*entity.Block, error) {
	header, err := b.Header.decode()
	if err != nil {
		return nil, err
	}
	root, ok := treeRoot(header.Digest)
	if !ok {
		return nil, ErrNoTreeRoot
	}
	timestamp, err := extractTimestamp(b.Extrinsics, layout)
	if err != nil {
		return nil, err
	}
	return &entity.Block{
		Number:     uint64(header.Number),
		ParentHash: [32]byte(header.ParentHash),
		TreeRoot:   root,
		Timestamp:  timestamp,
		Blobs:      extractBlobs(b.Extrinsics, layout),
	}, nil
}
