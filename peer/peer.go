// Package peer defines the identity of a trusted participant in the
// permissioned peer set.
package peer

import "github.com/tolelom/sumeragi/crypto"

// ID is a peer's identity: a network address paired with a public key.
// Identity equality uses the public key only — the address is routing
// metadata and may change (e.g. NAT rebinding) without affecting topology.
type ID struct {
	Address   string
	PublicKey crypto.PublicKey
}

// Equal reports whether two IDs refer to the same peer, comparing public
// keys only.
func (id ID) Equal(other ID) bool {
	if len(id.PublicKey) != len(other.PublicKey) {
		return false
	}
	for i := range id.PublicKey {
		if id.PublicKey[i] != other.PublicKey[i] {
			return false
		}
	}
	return true
}

// Key returns a map-safe string form of the public key, suitable for use as
// a key in a SignatureSet or peer-indexed map.
func (id ID) Key() string {
	return id.PublicKey.Hex()
}

// String returns a short human-readable identifier for logs.
func (id ID) String() string {
	k := id.Key()
	if len(k) > 12 {
		k = k[:12]
	}
	return id.Address + "/" + k
}
