package outbound

// SignatureScheme identifies the MultiSignature variant a Signer produces.
type SignatureScheme byte

const (
	SignatureSchemeEd25519 SignatureScheme = 0
	SignatureSchemeSr25519 SignatureScheme = 1
	SignatureSchemeEcdsa   SignatureScheme = 2
)

// SignatureSize returns the encoded signature length for the scheme.
func (s SignatureScheme) SignatureSize() int {
	if s == SignatureSchemeEcdsa {
		return 65
	}
	return 64
}

// Signer is the capability used to sign extrinsic payloads.
// Key storage and derivation are the implementation's concern.
type Signer interface {
	// PublicKey returns the 32-byte account id of the signer.
	PublicKey() [32]byte

	// Scheme returns the signature scheme of Sign's output.
	Scheme() SignatureScheme

	// Sign signs payload and returns the raw signature bytes.
	Sign(payload []byte) ([]byte, error)
}
