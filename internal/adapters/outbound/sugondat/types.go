// types.go defines the JSON shapes returned by the node.
package sugondat

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// rpcHeader is a block header as rendered by the node. Digest logs are the
// hex of already SCALE-encoded DigestItems.
type rpcHeader struct {
	ParentHash     common.Hash    `json:"parentHash"`
	Number         hexutil.Uint64 `json:"number"`
	StateRoot      common.Hash    `json:"stateRoot"`
	ExtrinsicsRoot common.Hash    `json:"extrinsicsRoot"`
	Digest         rpcDigest      `json:"digest"`
}

type rpcDigest struct {
	Logs []hexutil.Bytes `json:"logs"`
}

// rpcSignedBlock is the result of chain_getBlock.
type rpcSignedBlock struct {
	Block          rpcBlock        `json:"block"`
	Justifications json.RawMessage `json:"justifications,omitempty"`
}

type rpcBlock struct {
	Header rpcHeader `json:"header"`
	// Extrinsics are SCALE-encoded with their compact length prefix.
	Extrinsics []hexutil.Bytes `json:"extrinsics"`
}

// rpcRuntimeVersion is the subset of state_getRuntimeVersion the signer needs.
type rpcRuntimeVersion struct {
	SpecName           string `json:"specName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}
