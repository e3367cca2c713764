package core

import (
	"encoding/json"

	"github.com/tolelom/sumeragi/crypto"
)

// SignatureSet is a mapping from public key (hex) to signature, keyed so a
// peer can sign at most once per block. It is order-independent; equality
// is by key set (§3, §9: "use a mapping keyed by public key bytes; never a
// sequence with possible duplicates — protocol safety depends on this").
type SignatureSet struct {
	byKey map[string]string // pubkey hex -> signature hex
}

// NewSignatureSet returns an empty SignatureSet.
func NewSignatureSet() SignatureSet {
	return SignatureSet{byKey: make(map[string]string)}
}

// Add inserts pub's signature. It is idempotent: re-adding the same pubkey
// overwrites its prior signature rather than creating a duplicate entry,
// which is what "at most once per block" requires at the storage level —
// callers still must refuse to double-sign at the protocol level (see
// sumeragi.RoundState).
func (s *SignatureSet) Add(pub crypto.PublicKey, sigHex string) {
	if s.byKey == nil {
		s.byKey = make(map[string]string)
	}
	s.byKey[pub.Hex()] = sigHex
}

// Has reports whether pub has already signed.
func (s SignatureSet) Has(pub crypto.PublicKey) bool {
	if s.byKey == nil {
		return false
	}
	_, ok := s.byKey[pub.Hex()]
	return ok
}

// Len returns the number of distinct signers.
func (s SignatureSet) Len() int {
	return len(s.byKey)
}

// Keys returns the hex public keys of every signer, in unspecified order —
// aggregation is commutative (§5), so no ordering is ever meaningful here.
func (s SignatureSet) Keys() []string {
	out := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	return out
}

// Verify checks every entry in s against data, returning an error on the
// first invalid or unparsable signature.
func (s SignatureSet) Verify(data []byte) error {
	for pubHex, sigHex := range s.byKey {
		pub, err := crypto.PubKeyFromHex(pubHex)
		if err != nil {
			return err
		}
		if err := crypto.Verify(pub, data, sigHex); err != nil {
			return err
		}
	}
	return nil
}

// Pairs returns the (pubkey-hex, signature-hex) entries, i.e. the quorum
// proof carried on a committed block (§6: "Signature quorum proof").
func (s SignatureSet) Pairs() map[string]string {
	out := make(map[string]string, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the set as its plain pubkey->signature map, so a
// block's persisted form carries its quorum proof.
func (s SignatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.byKey)
}

// UnmarshalJSON restores the set from its plain map encoding.
func (s *SignatureSet) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.byKey = m
	return nil
}
