package sugondat

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	gethhex "github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/sugondat-rpc/internal/pkg/ss58"
	"github.com/archon-research/sugondat-rpc/internal/ports/outbound"
)

// Compile-time check that Keypair implements outbound.Signer
var _ outbound.Signer = (*Keypair)(nil)

// Keypair is an ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
	public  [32]byte
}

// KeypairFromSeed derives a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		private: private,
		public:  [32]byte(private.Public().(ed25519.PublicKey)),
	}, nil
}

// KeypairFromHexSeed parses a 0x-prefixed hex seed.
func KeypairFromHexSeed(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	seed, err := gethhex.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex seed: %w", err)
	}
	return KeypairFromSeed(seed)
}

// PublicKey returns the account id.
func (k *Keypair) PublicKey() [32]byte {
	return k.public
}

// Scheme returns SignatureSchemeEd25519.
func (k *Keypair) Scheme() outbound.SignatureScheme {
	return outbound.SignatureSchemeEd25519
}

// Sign signs payload.
func (k *Keypair) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(k.private, payload), nil
}

// Address returns the SS58 address of the keypair for prefix.
func (k *Keypair) Address(prefix uint16) (string, error) {
	return ss58.Encode(k.public, prefix)
}
