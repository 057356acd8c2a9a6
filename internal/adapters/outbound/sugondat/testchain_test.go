package sugondat

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common"
	gethhex "github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/sugondat-rpc/internal/adapters/outbound/wsrpc"
	"github.com/archon-research/sugondat-rpc/internal/pkg/ss58"
)

const (
	testSpecVersion = 100
	testTxVersion   = 1
	testTimestamp   = 1_700_000_000_000
)

// fakeChain is an in-memory sugondat node. It answers the RPC methods the
// client uses and includes submitted blobs in new, immediately finalized
// blocks.
type fakeChain struct {
	layout RuntimeLayout

	mu     sync.Mutex
	blocks []rpcBlock
	hashes []common.Hash
	nonces map[[32]byte]uint64
	// zeroHashForMissing makes chain_getBlockHash answer the all-zero hash
	// instead of null for heights past the tip.
	zeroHashForMissing bool
	// statuses, when set, replaces the status sequence reported for a
	// submitted extrinsic included in the block with the given hash.
	statuses      func(included common.Hash) []any
	nextSubID     int
	finalizedSubs map[int]func(rpcHeader)
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	c := &fakeChain{
		layout:        DefaultRuntimeLayout(),
		nonces:        make(map[[32]byte]uint64),
		finalizedSubs: make(map[int]func(rpcHeader)),
	}
	c.addBlock() // genesis
	return c
}

// addBlock appends a block holding a timestamp inherent followed by extrinsics
// and returns its hash. It does not finalize it.
func (c *fakeChain) addBlock(extrinsics ...[]byte) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addBlockLocked(extrinsics...)
}

func (c *fakeChain) addBlockLocked(extrinsics ...[]byte) common.Hash {
	number := uint64(len(c.blocks))
	var parent common.Hash
	if number > 0 {
		parent = c.hashes[number-1]
	}

	header := rpcHeader{
		ParentHash:     parent,
		Number:         gethhex.Uint64(number),
		StateRoot:      common.Hash{0x01, byte(number)},
		ExtrinsicsRoot: common.Hash{0x02, byte(number)},
		Digest: rpcDigest{Logs: []gethhex.Bytes{
			preRuntimeDigest(),
			treeRootDigest(testTreeRoot(byte(number))),
		}},
	}

	body := []gethhex.Bytes{timestampExtrinsic(c.layout, testTimestamp+number*6000)}
	for _, xt := range extrinsics {
		body = append(body, xt)
	}

	hash := common.Hash(hashOf(header))
	c.blocks = append(c.blocks, rpcBlock{Header: header, Extrinsics: body})
	c.hashes = append(c.hashes, hash)
	return hash
}

// finalize announces the current tip to finalized-head subscribers.
func (c *fakeChain) finalize() {
	c.mu.Lock()
	header := c.blocks[len(c.blocks)-1].Header
	subs := make([]func(rpcHeader), 0, len(c.finalizedSubs))
	for _, fn := range c.finalizedSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(header)
	}
}

// announce sends an arbitrary header to finalized-head subscribers.
func (c *fakeChain) announce(header rpcHeader) {
	c.mu.Lock()
	subs := make([]func(rpcHeader), 0, len(c.finalizedSubs))
	for _, fn := range c.finalizedSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(header)
	}
}

func (c *fakeChain) subscribeFinalized(fn func(rpcHeader)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.finalizedSubs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.finalizedSubs, id)
		c.mu.Unlock()
	}
}

func (c *fakeChain) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finalizedSubs)
}

func (c *fakeChain) tip() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.blocks) - 1)
}

func (c *fakeChain) hashAt(number uint64) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashes[number]
}

func (c *fakeChain) headerAt(number uint64) rpcHeader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[number].Header
}

// handle answers a plain request. A nil result encodes as JSON null.
func (c *fakeChain) handle(method string, params []json.RawMessage) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch method {
	case methodGetBlockHash:
		var height uint64
		if err := decodeParam(params, 0, &height); err != nil {
			return nil, err
		}
		if height < uint64(len(c.hashes)) {
			return c.hashes[height], nil
		}
		if c.zeroHashForMissing {
			return common.Hash{}, nil
		}
		return nil, nil

	case methodGetBlock:
		var hash common.Hash
		if err := decodeParam(params, 0, &hash); err != nil {
			return nil, err
		}
		for i, h := range c.hashes {
			if h == hash {
				return rpcSignedBlock{Block: c.blocks[i]}, nil
			}
		}
		return nil, nil

	case methodGetRuntimeVersion:
		return rpcRuntimeVersion{SpecName: "sugondat-test", SpecVersion: testSpecVersion, TransactionVersion: testTxVersion}, nil

	case methodAccountNextIndex:
		var address string
		if err := decodeParam(params, 0, &address); err != nil {
			return nil, err
		}
		id, _, err := ss58.Decode(address)
		if err != nil {
			return nil, err
		}
		return c.nonces[id], nil
	}
	return nil, fmt.Errorf("method %s not found", method)
}

// submit validates a signed submit_blob extrinsic, includes it in a new
// block, finalizes that block and returns the status sequence a node reports.
func (c *fakeChain) submit(params []json.RawMessage) ([]any, error) {
	var encoded gethhex.Bytes
	if err := decodeParam(params, 0, &encoded); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if err := c.verifyLocked(encoded); err != nil {
		c.mu.Unlock()
		return nil, &wsrpc.RPCError{Code: 1010, Message: "Invalid Transaction", Data: json.RawMessage(fmt.Sprintf("%q", err.Error()))}
	}
	hash := c.addBlockLocked(encoded)
	statuses := c.statuses
	c.mu.Unlock()

	c.finalize()
	if statuses != nil {
		return statuses(hash), nil
	}
	return []any{
		"ready",
		map[string]any{"broadcast": []string{"peer-1"}},
		map[string]any{"inBlock": hash},
		map[string]any{"finalized": hash},
	}, nil
}

// verifyLocked checks the signature and nonce of an ed25519-signed extrinsic
// and bumps the sender's nonce.
func (c *fakeChain) verifyLocked(raw []byte) error {
	xt, err := decodeExtrinsic(raw)
	if err != nil {
		return err
	}
	sender, ok := senderAccount(xt)
	if !ok {
		return errors.New("expected extrinsic signed by an account id")
	}
	sig := xt.Signature.Signature
	if !sig.IsEd25519 {
		return errors.New("expected ed25519 signature")
	}

	nonce, err := compactToUint64(xt.Signature.Nonce)
	if err != nil {
		return err
	}
	tip, err := compactToUint64(xt.Signature.Tip)
	if err != nil {
		return err
	}
	if !xt.Signature.Era.IsImmortalEra || tip != 0 {
		return errors.New("unexpected signed extra")
	}
	if nonce != c.nonces[sender] {
		return fmt.Errorf("stale nonce %d, want %d", nonce, c.nonces[sender])
	}

	payload, err := signingPayload(xt.Method, signingOptions{
		nonce:       nonce,
		specVersion: testSpecVersion,
		txVersion:   testTxVersion,
		genesisHash: c.hashes[0],
	})
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(sender[:]), payload, sig.AsEd25519[:]) {
		return errors.New("bad signature")
	}
	c.nonces[sender]++
	return nil
}

func decodeParam(params []json.RawMessage, i int, v any) error {
	if i >= len(params) {
		return fmt.Errorf("missing param %d", i)
	}
	return json.Unmarshal(params[i], v)
}

// --- block building helpers ---

func testTreeRoot(seed byte) [68]byte {
	var raw [68]byte
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return raw
}

// scaleEncode encodes a fixture value. Fixtures are always encodable.
func scaleEncode(v any) []byte {
	enc, err := codec.Encode(v)
	if err != nil {
		panic(err)
	}
	return enc
}

// withLength prefixes body with its compact length, as extrinsics are sent.
func withLength(body []byte) []byte {
	return append(scaleEncode(types.NewUCompactFromUInt(uint64(len(body)))), body...)
}

func hashOf(h rpcHeader) [32]byte {
	header, err := h.decode()
	if err != nil {
		panic(err)
	}
	hash, err := headerHash(header)
	if err != nil {
		panic(err)
	}
	return hash
}

func otherDigest(payload []byte) []byte {
	return scaleEncode(types.DigestItem{IsOther: true, AsOther: types.NewBytes(payload)})
}

func treeRootDigest(raw [68]byte) []byte {
	return otherDigest(append([]byte("snmt"), raw[:]...))
}

// preRuntimeDigest is an aura PreRuntime digest item.
func preRuntimeDigest() []byte {
	return []byte{6, 'a', 'u', 'r', 'a', 8 << 2, 1, 2, 3, 4, 5, 6, 7, 8}
}

func timestampExtrinsic(layout RuntimeLayout, now uint64) []byte {
	args := scaleEncode(types.NewUCompactFromUInt(now))
	xt, err := encodeUnsignedExtrinsic(newCall(layout.TimestampPallet, layout.TimestampSet, args))
	if err != nil {
		panic(err)
	}
	return xt
}

func submitBlobCall(t *testing.T, layout RuntimeLayout, namespaceID uint32, data []byte) types.Call {
	t.Helper()
	args, err := encodeSubmitBlob(namespaceID, data)
	if err != nil {
		t.Fatalf("encodeSubmitBlob: %v", err)
	}
	return newCall(layout.BlobsPallet, layout.BlobsSubmitBlob, args)
}

func signedBlobExtrinsic(t *testing.T, kp *Keypair, nonce uint64, genesis common.Hash, namespaceID uint32, data []byte) []byte {
	t.Helper()
	xt, err := signExtrinsic(submitBlobCall(t, DefaultRuntimeLayout(), namespaceID, data), signingOptions{
		nonce:       nonce,
		specVersion: testSpecVersion,
		txVersion:   testTxVersion,
		genesisHash: genesis,
	}, kp)
	if err != nil {
		t.Fatalf("signExtrinsic: %v", err)
	}
	return xt
}

func testKeypair(t *testing.T, seed byte) *Keypair {
	t.Helper()
	s := make([]byte, 32)
	for i := range s {
		s[i] = seed
	}
	kp, err := KeypairFromSeed(s)
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	return kp
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*testTimeoutUnit)
	t.Cleanup(cancel)
	return ctx
}
