package core

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/sumeragi/crypto"
)

// ValidBlock is a PendingBlock whose transactions have all passed stateful
// validation against a WSV snapshot; it carries zero or more peer
// signatures and the transactions that were rejected during validation.
type ValidBlock struct {
	Header               BlockHeader    `json:"header"`
	Transactions         []*Transaction `json:"transactions"`
	RejectedTransactions []*Transaction `json:"rejected_transactions,omitempty"`
	Signatures           SignatureSet   `json:"signatures"`
}

// Hash returns the block hash that peers sign — identical in derivation to
// PendingBlock.Hash, computed over the (possibly narrowed) header produced
// by Validate.
func (b *ValidBlock) Hash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		panic(fmt.Sprintf("core: marshal block header: %v", err))
	}
	return crypto.Hash(data)
}

// Sign adds priv's signature over Hash() to the block's SignatureSet. It is
// safe to call multiple times with different keys (e.g. Leader signs at
// creation, each Validating Peer signs on receipt); signing twice with the
// same key is a no-op overwrite, not a double-signature — callers enforce
// "never sign two distinct blocks at the same (height, view_change_count)"
// at the round-state level, not here.
func (b *ValidBlock) Sign(priv crypto.PrivateKey) {
	pub := priv.Public()
	sig := crypto.Sign(priv, []byte(b.Hash()))
	b.Signatures.Add(pub, sig)
}

// VerifySignatures checks every signature in the block's SignatureSet
// against Hash().
func (b *ValidBlock) VerifySignatures() error {
	return b.Signatures.Verify([]byte(b.Hash()))
}

// Clone returns a deep-enough copy suitable for independent mutation of the
// SignatureSet (used when forwarding a block between peers so each hop's
// signature accumulation doesn't alias another's).
func (b *ValidBlock) Clone() *ValidBlock {
	clone := &ValidBlock{
		Header:     b.Header,
		Signatures: NewSignatureSet(),
	}
	clone.Transactions = append(clone.Transactions, b.Transactions...)
	clone.RejectedTransactions = append(clone.RejectedTransactions, b.RejectedTransactions...)
	for _, k := range b.Signatures.Keys() {
		pub, err := crypto.PubKeyFromHex(k)
		if err != nil {
			continue
		}
		sig := b.Signatures.Pairs()[k]
		clone.Signatures.Add(pub, sig)
	}
	return clone
}

// Promote turns a ValidBlock that has reached signature quorum into a
// CommittedBlock. Callers must check quorum (SignatureSet.Len() against
// topology.Topology.BlockSignatureQuorum()) before calling this — Promote
// itself does not re-check, since the Proxy Tail is the only caller and it
// already gates on quorum in the state machine.
func (b *ValidBlock) Promote() *CommittedBlock {
	return &CommittedBlock{
		Header:               b.Header,
		Transactions:         b.Transactions,
		RejectedTransactions: b.RejectedTransactions,
		Signatures:           b.Signatures,
	}
}
