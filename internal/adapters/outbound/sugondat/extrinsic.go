// extrinsic.go decodes and builds version 4 Substrate extrinsics on top of
// go-substrate-rpc-client's types.
//
// Wire layout:
//
//	compact(len) ‖ version ‖ [signature] ‖ pallet ‖ call ‖ args
//
// where version is 0x04 for unsigned and 0x84 for signed extrinsics, and the
// signature part is ExtrinsicSignatureV4 (MultiAddress, MultiSignature, era,
// nonce, tip).
package sugondat

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// Signing payloads longer than this are hashed before signing.
const maxUnhashedPayload = 256

var errUnsupportedExtrinsic = errors.New("unsupported extrinsic format")

// decodeExtrinsic decodes a length-prefixed extrinsic. Call arguments are left
// encoded in Method.Args.
func decodeExtrinsic(raw []byte) (*types.Extrinsic, error) {
	r := bytes.NewReader(raw)
	length, err := scale.NewDecoder(r).DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("reading length: %w", err)
	}
	if !length.IsUint64() || length.Uint64() != uint64(r.Len()) {
		return nil, fmt.Errorf("length prefix %s does not match %d remaining bytes", length, r.Len())
	}
	if r.Len() == 0 {
		return nil, fmt.Errorf("%w: empty body", errUnsupportedExtrinsic)
	}
	// The library decoder accepts any unsigned version.
	if version := raw[len(raw)-r.Len()] & types.ExtrinsicUnmaskVersion; version != types.ExtrinsicVersion4 {
		return nil, fmt.Errorf("%w: version %d", errUnsupportedExtrinsic, version)
	}

	var xt types.Extrinsic
	if err := codec.Decode(raw, &xt); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnsupportedExtrinsic, err)
	}
	return &xt, nil
}

// senderAccount returns the account id that signed xt. Only signers whose
// encoded address is 33 bytes, a variant tag and a 32-byte account id,
// identify a sender.
func senderAccount(xt *types.Extrinsic) ([32]byte, bool) {
	if !xt.IsSigned() {
		return [32]byte{}, false
	}
	address, err := codec.Encode(xt.Signature.Signer)
	if err != nil || len(address) != 33 {
		return [32]byte{}, false
	}
	return [32]byte(address[1:]), true
}

func isCall(xt *types.Extrinsic, pallet, call byte) bool {
	return xt.Method.CallIndex.SectionIndex == pallet && xt.Method.CallIndex.MethodIndex == call
}

// newCall builds a call from its indices and already encoded arguments.
func newCall(pallet, call byte, args []byte) types.Call {
	return types.Call{
		CallIndex: types.CallIndex{SectionIndex: pallet, MethodIndex: call},
		Args:      args,
	}
}

// decodeArgs decodes call arguments into target and rejects trailing bytes.
func decodeArgs(args []byte, target any) error {
	r := bytes.NewReader(args)
	if err := scale.NewDecoder(r).Decode(target); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after call args", r.Len())
	}
	return nil
}

func compactToUint64(u types.UCompact) (uint64, error) {
	v := (*big.Int)(&u)
	if !v.IsUint64() {
		return 0, fmt.Errorf("compact value %s overflows uint64", v)
	}
	return v.Uint64(), nil
}

// signingOptions is what a signature commits to besides the call. Only
// immortal transactions without a tip are built, so the era checkpoint is
// the genesis hash.
type signingOptions struct {
	nonce       uint64
	specVersion uint32
	txVersion   uint32
	genesisHash [32]byte
}

func (o signingOptions) payload(call types.Call) (types.ExtrinsicPayloadV4, error) {
	method, err := codec.Encode(call)
	if err != nil {
		return types.ExtrinsicPayloadV4{}, fmt.Errorf("encoding call: %w", err)
	}
	return types.ExtrinsicPayloadV4{
		ExtrinsicPayloadV3: types.ExtrinsicPayloadV3{
			Method:      types.BytesBare(method),
			Era:         types.ExtrinsicEra{IsImmortalEra: true},
			Nonce:       types.NewUCompactFromUInt(o.nonce),
			Tip:         types.NewUCompactFromUInt(0),
			SpecVersion: types.NewU32(o.specVersion),
			GenesisHash: types.Hash(o.genesisHash),
			BlockHash:   types.Hash(o.genesisHash),
		},
		TransactionVersion: types.NewU32(o.txVersion),
	}, nil
}

// signingPayload returns the bytes a signer signs for call.
func signingPayload(call types.Call, opts signingOptions) ([]byte, error) {
	p, err := opts.payload(call)
	if err != nil {
		return nil, err
	}
	payload, err := codec.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encoding signing payload: %w", err)
	}
	if len(payload) > maxUnhashedPayload {
		h := blake2b.Sum256(payload)
		return h[:], nil
	}
	return payload, nil
}

// signExtrinsic signs call with signer and returns the length-prefixed signed
// extrinsic.
func signExtrinsic(call types.Call, opts signingOptions, signer outbound.Signer) ([]byte, error) {
	payload, err := signingPayload(call, opts)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("signing extrinsic: %w", err)
	}
	return encodeSignedExtrinsic(signer.PublicKey(), signer.Scheme(), signature, opts.nonce, call)
}

func multiSignature(scheme outbound.SignatureScheme, signature []byte) (types.MultiSignature, error) {
	if len(signature) != scheme.SignatureSize() {
		return types.MultiSignature{}, fmt.Errorf("signature is %d bytes, scheme %d wants %d", len(signature), scheme, scheme.SignatureSize())
	}
	switch scheme {
	case outbound.SignatureSchemeEd25519:
		return types.MultiSignature{IsEd25519: true, AsEd25519: types.NewSignature(signature)}, nil
	case outbound.SignatureSchemeSr25519:
		return types.MultiSignature{IsSr25519: true, AsSr25519: types.NewSignature(signature)}, nil
	case outbound.SignatureSchemeEcdsa:
		return types.MultiSignature{IsEcdsa: true, AsEcdsa: types.NewEcdsaSignature(signature)}, nil
	}
	return types.MultiSignature{}, fmt.Errorf("%w: signature scheme %d", errUnsupportedExtrinsic, scheme)
}

// encodeSignedExtrinsic assembles a length-prefixed signed extrinsic with an
// Id signer address.
func encodeSignedExtrinsic(signer [32]byte, scheme outbound.SignatureScheme, signature []byte, nonce uint64, call types.Call) ([]byte, error) {
	sig, err := multiSignature(scheme, signature)
	if err != nil {
		return nil, err
	}
	address, err := types.NewMultiAddressFromAccountID(signer[:])
	if err != nil {
		return nil, fmt.Errorf("signer address: %w", err)
	}

	xt := types.NewExtrinsic(call)
	xt.Version |= types.ExtrinsicBitSigned
	xt.Signature = types.ExtrinsicSignatureV4{
		Signer:    address,
		Signature: sig,
		Era:       types.ExtrinsicEra{IsImmortalEra: true},
		Nonce:     types.NewUCompactFromUInt(nonce),
		Tip:       types.NewUCompactFromUInt(0),
	}
	return codec.Encode(xt)
}

// encodeUnsignedExtrinsic assembles a length-prefixed unsigned extrinsic.
func encodeUnsignedExtrinsic(call types.Call) ([]byte, error) {
	return codec.Encode(types.NewExtrinsic(call))
}
