package crypto

import "fmt"

// Algorithm identifies which signature scheme a peer key uses. The consensus
// math never depends on which algorithm is in play; only Sign/Verify do.
type Algorithm string

const (
	AlgorithmEd25519   Algorithm = "ed25519"
	AlgorithmSecp256k1 Algorithm = "secp256k1"
)

// Signer abstracts Sign/Verify over a concrete algorithm so the consensus
// core can treat every peer's key uniformly regardless of scheme.
type Signer interface {
	Algorithm() Algorithm
	Sign(priv PrivateKey, data []byte) (string, error)
	Verify(pub PublicKey, data []byte, sigHex string) error
}

// SignerFor resolves the Signer implementation for algo.
func SignerFor(algo Algorithm) (Signer, error) {
	switch algo {
	case "", AlgorithmEd25519:
		return ed25519Signer{}, nil
	case AlgorithmSecp256k1:
		return secp256k1Signer{}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown algorithm %q", algo)
	}
}

type ed25519Signer struct{}

func (ed25519Signer) Algorithm() Algorithm { return AlgorithmEd25519 }

func (ed25519Signer) Sign(priv PrivateKey, data []byte) (string, error) {
	return Sign(priv, data), nil
}

func (ed25519Signer) Verify(pub PublicKey, data []byte, sigHex string) error {
	return Verify(pub, data, sigHex)
}
