package outbound

import (
	"context"

	"github.com/archon-research/sugondat-rpc/internal/domain/entity"
	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
)

// BlobClient is the data-availability client consumed by rollup-facing code.
//
// Query methods never surface transport failures: they retry until they
// succeed or ctx is done.
type BlobClient interface {
	// BlockHash returns the hash of the block at height, or ok=false if there
	// is no block at that height.
	BlockHash(ctx context.Context, height uint64) (hash [32]byte, ok bool, err error)

	// WaitFinalizedHeight blocks until the block at height is finalized and
	// returns its hash.
	WaitFinalizedHeight(ctx context.Context, height uint64) ([32]byte, error)

	// GetBlockAt returns the decoded block with the given hash.
	GetBlockAt(ctx context.Context, blockHash [32]byte) (*entity.Block, error)

	// SubmitBlob submits data under ns, signed by signer, and returns the
	// hash of the block it was finalized in. Best effort: an error does not
	// prove the blob was not included.
	SubmitBlob(ctx context.Context, data []byte, ns nmt.Namespace, signer Signer) ([32]byte, error)
}
