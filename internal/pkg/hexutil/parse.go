// Package hexutil provides helpers for the 0x-prefixed hex values used by
// Substrate JSON-RPC.
package hexutil

import (
	gethhex "github.com/ethereum/go-ethereum/common/hexutil"
)

// FormatHash renders a 32-byte hash as a 0x-prefixed hex string.
func FormatHash(hash [32]byte) string {
	return gethhex.Encode(hash[:])
}

// TruncateHash shortens a hash for logging purposes.
func TruncateHash(hash [32]byte) string {
	s := FormatHash(hash)
	return s[:8] + "..." + s[len(s)-6:]
}
