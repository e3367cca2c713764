// Package topology computes the deterministic mapping from a trusted peer
// set to Sumeragi roles (Leader, Validating Peer, Proxy Tail, Observing
// Peer) and reshuffles it on every committed block.
package topology

import (
	"bytes"
	"sort"

	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/peer"
)

// Role identifies a peer's function for the current round.
type Role int

const (
	RoleLeader Role = iota
	RoleValidatingPeer
	RoleProxyTail
	RoleObservingPeer
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleValidatingPeer:
		return "validating_peer"
	case RoleProxyTail:
		return "proxy_tail"
	case RoleObservingPeer:
		return "observing_peer"
	default:
		return "unknown"
	}
}

// Topology is an ordered sequence of peers with a derived role mapping. It
// is immutable; every operation that changes the ordering returns a new
// Topology.
type Topology struct {
	peers           []peer.ID
	seed            []byte
	viewChangeCount uint32
	maxFaulty       int // f
}

// MaxFaulty returns f = (N-1)/3 for the voting-peer subset.
func (t Topology) MaxFaulty() int { return t.maxFaulty }

// ViewChangeCount returns the number of leader rotations since the last
// commit.
func (t Topology) ViewChangeCount() uint32 { return t.viewChangeCount }

// Peers returns the full ordered peer sequence. The returned slice must not
// be mutated by callers.
func (t Topology) Peers() []peer.ID { return t.peers }

// Len returns the total number of peers (voting + observing).
func (t Topology) Len() int { return len(t.peers) }

// VotingPeerCount returns 3f+1 (or N for N<4, see New).
func (t Topology) VotingPeerCount() int {
	if len(t.peers) < 4 {
		return len(t.peers)
	}
	return 3*t.maxFaulty + 1
}

// BlockSignatureQuorum returns 2f+1, the number of distinct voting-peer
// signatures required to commit a block.
func (t Topology) BlockSignatureQuorum() int {
	if len(t.peers) < 4 {
		return len(t.peers)
	}
	return 2*t.maxFaulty + 1
}

// ViewChangeQuorum returns f+1, the number of matching ViewChangeSuggested
// observations required to force a rotation.
func (t Topology) ViewChangeQuorum() int {
	if len(t.peers) < 4 {
		return 1
	}
	return t.maxFaulty + 1
}

// Leader returns the current Leader peer (position 0).
func (t Topology) Leader() peer.ID { return t.peers[0] }

// ProxyTail returns the current Proxy Tail peer (last voting position).
func (t Topology) ProxyTail() peer.ID {
	return t.peers[t.VotingPeerCount()-1]
}

// RoleOf returns the role of id within this Topology, and whether id is a
// member at all.
func (t Topology) RoleOf(id peer.ID) (Role, bool) {
	for i, p := range t.peers {
		if p.Equal(id) {
			return t.roleAt(i), true
		}
	}
	return 0, false
}

func (t Topology) roleAt(i int) Role {
	votingCount := t.VotingPeerCount()
	if i >= votingCount {
		return RoleObservingPeer
	}
	switch {
	case i == 0:
		return RoleLeader
	case i == votingCount-1:
		return RoleProxyTail
	default:
		return RoleValidatingPeer
	}
}

// VotingPeers returns the ordered voting-peer subset: the first
// VotingPeerCount() peers (3f+1 for N>=4, the whole set for N<4).
func (t Topology) VotingPeers() []peer.ID {
	return t.peers[:t.VotingPeerCount()]
}

// ObservingPeers returns the ordered observing-peer subset.
func (t Topology) ObservingPeers() []peer.ID {
	return t.peers[t.VotingPeerCount():]
}

// sortKey computes H(pubkey || seed) for one peer.
func sortKey(id peer.ID, seed []byte) []byte {
	buf := make([]byte, 0, len(id.PublicKey)+len(seed))
	buf = append(buf, id.PublicKey...)
	buf = append(buf, seed...)
	return crypto.HashBytes(buf)
}

// SortPeers computes the deterministic ordering for peerSet given seed and
// viewChangeCount: peers are sorted ascending by H(pubkey||seed), ties
// broken by raw public-key bytes, then rotated left by
// viewChangeCount mod N. Two independent calls with identical arguments
// always return an identical sequence (TESTABLE PROPERTY 1).
func SortPeers(peerSet []peer.ID, seed []byte, viewChangeCount uint32) []peer.ID {
	sorted := make([]peer.ID, len(peerSet))
	copy(sorted, peerSet)

	keys := make(map[string][]byte, len(sorted))
	for _, p := range sorted {
		keys[p.Key()] = sortKey(p, seed)
	}

	sort.Slice(sorted, func(i, j int) bool {
		ki, kj := keys[sorted[i].Key()], keys[sorted[j].Key()]
		if c := bytes.Compare(ki, kj); c != 0 {
			return c < 0
		}
		return bytes.Compare(sorted[i].PublicKey, sorted[j].PublicKey) < 0
	})

	n := len(sorted)
	if n == 0 {
		return sorted
	}
	shift := int(viewChangeCount) % n
	if shift == 0 {
		return sorted
	}
	rotated := make([]peer.ID, n)
	for i := range sorted {
		rotated[i] = sorted[(i+shift)%n]
	}
	return rotated
}

// maxFaultyFor computes f = (N-1)/3 for N>=4; for N<4 the whole set votes
// and f is meaningless (roles degrade per New's doc comment), so 0 is
// returned and callers must special-case Len()<4 instead of relying on f.
func maxFaultyFor(n int) int {
	if n < 4 {
		return 0
	}
	return (n - 1) / 3
}

// New builds a fresh Topology from peerSet, seed and viewChangeCount. For
// N < 4 the whole set is voting and roles degrade gracefully: leader is
// position 0, proxy tail is the last position, quorum equals N.
func New(peerSet []peer.ID, seed []byte, viewChangeCount uint32) Topology {
	sorted := SortPeers(peerSet, seed, viewChangeCount)
	return Topology{
		peers:           sorted,
		seed:            append([]byte(nil), seed...),
		viewChangeCount: viewChangeCount,
		maxFaulty:       maxFaultyFor(len(sorted)),
	}
}

// Reshuffle re-sorts the peer set from scratch, reseeded with newSeed
// (typically the newly committed block's hash), and resets
// view_change_count to 0. No peer is added or removed unless the caller
// passes a different peerSet (e.g. after an external reconfiguration
// transaction took effect).
func (t Topology) Reshuffle(peerSet []peer.ID, newSeed []byte) Topology {
	return New(peerSet, newSeed, 0)
}

// RotateViewChange increments view_change_count and recomputes the rotation
// from the same seed, without a full re-sort. This is what makes a view
// change rotate the Leader/Proxy Tail without changing the permutation
// identity (§9 "Topology re-sort vs. rotation").
func (t Topology) RotateViewChange() Topology {
	return New(t.RawPeerSet(), t.seed, t.viewChangeCount+1)
}

// ForceReshuffle performs a full re-sort from the current seed without
// waiting for a commit. Used when n_topology_shifts_before_reshuffle is
// exceeded (see SPEC_FULL.md §D.1); view_change_count resets to 0 but the
// seed is unchanged, since no new block was committed.
func (t Topology) ForceReshuffle() Topology {
	return New(t.RawPeerSet(), t.seed, 0)
}

// RawPeerSet returns the member peers in no particular guaranteed order
// (it returns the current sorted order; order does not matter to New/
// SortPeers, which re-derive it from the seed).
func (t Topology) RawPeerSet() []peer.ID {
	out := make([]peer.ID, len(t.peers))
	copy(out, t.peers)
	return out
}

// Seed returns the seed this Topology was derived from.
func (t Topology) Seed() []byte {
	return append([]byte(nil), t.seed...)
}

// GenesisSeed is the canonical seed used to sort the genesis Topology,
// before any block has been committed.
var GenesisSeed = bytes.Repeat([]byte{0}, 32)
