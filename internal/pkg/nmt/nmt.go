// Package nmt holds the namespace and tree root types committed by the
// namespaced Merkle tree of a sugondat block.
package nmt

import (
	"encoding/binary"
	"strconv"
)

const (
	// NamespaceSize is the size of a namespace identifier in bytes.
	NamespaceSize = 4

	// TreeRootSize is the size of a raw tree root as carried in a header digest.
	TreeRootSize = 68

	// treeNamespaceSize is the width of a namespace inside the tree. The
	// 4-byte namespace is right-aligned and zero-padded.
	treeNamespaceSize = 18
	hashSize          = 32
)

// Namespace is a 32-bit namespace identifier stored big-endian.
type Namespace [NamespaceSize]byte

// NamespaceFromUint32BE returns the namespace whose big-endian identifier is id.
func NamespaceFromUint32BE(id uint32) Namespace {
	var ns Namespace
	binary.BigEndian.PutUint32(ns[:], id)
	return ns
}

// ToUint32BE returns the namespace identifier as a big-endian integer.
func (n Namespace) ToUint32BE() uint32 {
	return binary.BigEndian.Uint32(n[:])
}

// String returns the decimal identifier.
func (n Namespace) String() string {
	return strconv.FormatUint(uint64(n.ToUint32BE()), 10)
}

// TreeRoot is the namespaced Merkle tree root over all blobs of a block.
//
// Raw layout: min namespace (18 bytes) | max namespace (18 bytes) | root (32 bytes).
type TreeRoot struct {
	raw [TreeRootSize]byte
}

// TreeRootFromRawBytes decodes a tree root from its raw representation.
func TreeRootFromRawBytes(raw [TreeRootSize]byte) TreeRoot {
	return TreeRoot{raw: raw}
}

// Bytes returns the raw representation.
func (t TreeRoot) Bytes() [TreeRootSize]byte {
	return t.raw
}

// MinNamespace returns the smallest namespace covered by the tree.
func (t TreeRoot) MinNamespace() Namespace {
	return namespaceAt(t.raw[:treeNamespaceSize])
}

// MaxNamespace returns the largest namespace covered by the tree.
func (t TreeRoot) MaxNamespace() Namespace {
	return namespaceAt(t.raw[treeNamespaceSize : 2*treeNamespaceSize])
}

// Root returns the 32-byte root hash.
func (t TreeRoot) Root() [hashSize]byte {
	var root [hashSize]byte
	copy(root[:], t.raw[2*treeNamespaceSize:])
	return root
}

func namespaceAt(field []byte) Namespace {
	var ns Namespace
	copy(ns[:], field[len(field)-NamespaceSize:])
	return ns
}
