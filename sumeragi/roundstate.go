package sumeragi

import (
	"fmt"
	"sync"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/topology"
)

// Phase names where a round currently sits in the pending -> valid ->
// committed progression. It is a named integer enum; RoundState carries the
// payload each phase needs (pending and valid block) alongside it.
type Phase int

const (
	// PhaseCollecting is the default phase: no block is in flight yet,
	// peers are forwarding transactions toward the Leader.
	PhaseCollecting Phase = iota
	// PhaseAwaitingBlock is a Validating Peer or Proxy Tail waiting for the
	// Leader's BlockCreated.
	PhaseAwaitingBlock
	// PhaseSigning is a block received and locally validated; this peer is
	// about to (or has just) added its own signature.
	PhaseSigning
	// PhaseAwaitingQuorum is the Proxy Tail accumulating BlockSigned
	// messages toward BlockSignatureQuorum.
	PhaseAwaitingQuorum
	// PhaseCommitted is terminal for the round: a CommittedBlock exists.
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseAwaitingBlock:
		return "awaiting_block"
	case PhaseSigning:
		return "signing"
	case PhaseAwaitingQuorum:
		return "awaiting_quorum"
	case PhaseCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// RoundState is the explicit, tagged state of one height's consensus round.
// It is mutated only through its own methods, each of which enforces the
// invariant that governs the corresponding transition (§3, §9 "never sign
// two distinct blocks at the same (height, view_change_count)").
type RoundState struct {
	mu sync.Mutex

	height   int64
	topology topology.Topology

	phase Phase

	pending *core.PendingBlock
	valid   *core.ValidBlock

	// signedAt records, per view_change_count, the hash of the block this
	// peer has already signed at that view — the guard against double
	// signing within one view.
	signedAt map[uint32]string
}

// NewRoundState starts a fresh round at height under topo, in the default
// PhaseCollecting phase.
func NewRoundState(height int64, topo topology.Topology) *RoundState {
	return &RoundState{
		height:   height,
		topology: topo,
		phase:    PhaseCollecting,
		signedAt: make(map[uint32]string),
	}
}

// Height returns this round's block height.
func (r *RoundState) Height() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

// Topology returns the topology currently governing this round.
func (r *RoundState) Topology() topology.Topology {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topology
}

// Phase returns the round's current phase.
func (r *RoundState) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// SetPending records the Leader's freshly formed block. It does not change
// the phase; PhaseSigning is reached when the caller passes the validated
// block to SetValid.
func (r *RoundState) SetPending(b *core.PendingBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = b
}

// SetValid records the validated block this round is now signing.
func (r *RoundState) SetValid(b *core.ValidBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid = b
	r.phase = PhaseSigning
}

// Valid returns the block currently being signed, or nil before one exists.
func (r *RoundState) Valid() *core.ValidBlock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valid
}

// MarkSigned records that this peer signed hash at the round's current
// view_change_count. It returns an error if this peer already signed a
// DIFFERENT hash at the same view — the one case the protocol must never
// allow, since two distinct signed blocks at the same (height,
// view_change_count) is the unsafety TESTABLE PROPERTY 2 rules out.
func (r *RoundState) MarkSigned(hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := r.topology.ViewChangeCount()
	if prior, ok := r.signedAt[view]; ok && prior != hash {
		return fmt.Errorf("sumeragi: refusing to sign block %s at height %d view %d: already signed %s",
			hash, r.height, view, prior)
	}
	r.signedAt[view] = hash
	return nil
}

// AwaitBlock transitions to PhaseAwaitingBlock (a Validating Peer or Proxy
// Tail with no block yet).
func (r *RoundState) AwaitBlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseAwaitingBlock
}

// AwaitQuorum transitions to PhaseAwaitingQuorum (the Proxy Tail has signed
// and is now accumulating others' signatures).
func (r *RoundState) AwaitQuorum() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseAwaitingQuorum
}

// Commit transitions to the terminal PhaseCommitted.
func (r *RoundState) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseCommitted
}

// ViewChange rotates the round onto newTopology (produced by
// topology.Topology.RotateViewChange or, once the configured streak of
// rotations is exceeded, ForceReshuffle) without advancing height, and resets
// the in-flight block — a view change discards the stalled Leader's
// candidate, it never carries it forward. The prior ValidBlock's hash, if
// any, is returned so the caller can log it to the InvalidatedBlocks log.
func (r *RoundState) ViewChange(newTopology topology.Topology) (invalidatedHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.valid != nil {
		invalidatedHash = r.valid.Hash()
	}
	r.topology = newTopology
	r.pending = nil
	r.valid = nil
	r.phase = PhaseCollecting
	return invalidatedHash
}
