package sugondat

import "errors"

var (
	// ErrNoTreeRoot is returned when a block header carries no namespaced
	// merkle tree root digest. The node is probably not a sugondat node.
	ErrNoTreeRoot = errors.New("no tree root found in block header")

	// ErrNoTimestamp is returned when a block has no Timestamp.set inherent.
	ErrNoTimestamp = errors.New("no timestamp found in block")

	// ErrBlockNotFound is returned when the node has no block with the requested hash.
	ErrBlockNotFound = errors.New("block not found")

	// ErrClientClosed is returned by operations started after Close.
	ErrClientClosed = errors.New("client closed")

	// ErrSubmissionFailed wraps every SubmitBlob failure.
	ErrSubmissionFailed = errors.New("blob submission failed")
)
