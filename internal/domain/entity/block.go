package entity

import (
	"crypto/sha256"
	"fmt"

	"github.com/archon-research/sugondat-rpc/internal/pkg/nmt"
	"github.com/archon-research/sugondat-rpc/internal/pkg/ss58"
)

// Block is a sugondat block reduced to what the data-availability layer needs.
type Block struct {
	Number     uint64
	ParentHash [32]byte
	TreeRoot   nmt.TreeRoot
	// Timestamp is the block's Timestamp.set inherent, in milliseconds since
	// the Unix epoch.
	Timestamp uint64
	Blobs     []Blob
}

// Blob is one submit_blob extrinsic found in a block.
type Blob struct {
	// ExtrinsicIndex is the position of the originating extrinsic in the block.
	ExtrinsicIndex uint32
	Namespace      nmt.Namespace
	Sender         [32]byte
	Data           []byte
}

// Sha2Hash returns the SHA-256 digest of the blob data.
func (b Blob) Sha2Hash() [32]byte {
	return sha256.Sum256(b.Data)
}

// SenderAddress renders the sender as an SS58 address for the given network prefix.
func (b Blob) SenderAddress(prefix uint16) (string, error) {
	return ss58.Encode(b.Sender, prefix)
}

// String implements fmt.Stringer without dumping the payload.
func (b Blob) String() string {
	return fmt.Sprintf("Blob{index=%d namespace=%s sender=%x size=%d}", b.ExtrinsicIndex, b.Namespace, b.Sender[:4], len(b.Data))
}
