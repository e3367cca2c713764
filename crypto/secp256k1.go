package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secp256k1Signer signs and verifies with secp256k1 keys through the Signer
// interface (see SignerFor). Peer keys are not routed through it: config
// validation, PubKeyFromHex and the package-level Sign/Verify used for
// blocks, transactions and consensus messages are ed25519-only, so a peer
// cannot register with a secp256k1 key.
type secp256k1Signer struct{}

func (secp256k1Signer) Algorithm() Algorithm { return AlgorithmSecp256k1 }

func (secp256k1Signer) Sign(priv PrivateKey, data []byte) (string, error) {
	key := secp256k1.PrivKeyFromBytes(priv)
	hash := HashBytes(data)
	sig := ecdsa.Sign(key, hash)
	return hex.EncodeToString(sig.Serialize()), nil
}

func (secp256k1Signer) Verify(pub PublicKey, data []byte, sigHex string) error {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse secp256k1 signature: %w", err)
	}
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("parse secp256k1 pubkey: %w", err)
	}
	if !sig.Verify(HashBytes(data), key) {
		return errors.New("signature verification failed")
	}
	return nil
}

// GenerateSecp256k1KeyPair generates a new secp256k1 key pair.
func GenerateSecp256k1KeyPair() (PrivateKey, PublicKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(key.Serialize()), PublicKey(key.PubKey().SerializeCompressed()), nil
}
