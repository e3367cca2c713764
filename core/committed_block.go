package core

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/sumeragi/crypto"
)

// CommittedBlock is a ValidBlock whose signatures met the quorum threshold.
// It is terminal: nothing promotes out of it.
type CommittedBlock struct {
	Header               BlockHeader    `json:"header"`
	Transactions         []*Transaction `json:"transactions"`
	RejectedTransactions []*Transaction `json:"rejected_transactions,omitempty"`
	Signatures           SignatureSet   `json:"signatures"`
}

// Hash returns the 32-byte-equivalent hex hash used as the next block's
// PreviousHash and as the next Topology's reshuffle seed.
func (b *CommittedBlock) Hash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		panic(fmt.Sprintf("core: marshal block header: %v", err))
	}
	return crypto.Hash(data)
}

// VerifyChain checks that b correctly chains onto prev: height is exactly
// one greater and PreviousHash matches prev's hash (TESTABLE PROPERTY 3).
// prev == nil is only valid for the genesis block (height 0).
func (b *CommittedBlock) VerifyChain(prev *CommittedBlock) error {
	if prev == nil {
		if b.Header.Height != 0 {
			return fmt.Errorf("core: genesis block must have height 0, got %d", b.Header.Height)
		}
		return nil
	}
	if b.Header.Height != prev.Header.Height+1 {
		return fmt.Errorf("core: height discontinuity: got %d, want %d", b.Header.Height, prev.Header.Height+1)
	}
	if b.Header.PreviousHash != prev.Hash() {
		return fmt.Errorf("core: chain linkage broken at height %d", b.Header.Height)
	}
	return nil
}

// VerifyQuorum checks that the block carries at least quorum distinct valid
// signatures over its own hash.
func (b *CommittedBlock) VerifyQuorum(quorum int) error {
	if b.Signatures.Len() < quorum {
		return fmt.Errorf("core: insufficient signatures: got %d, want %d", b.Signatures.Len(), quorum)
	}
	if err := b.Signatures.Verify([]byte(b.Hash())); err != nil {
		return fmt.Errorf("core: invalid signature in quorum set: %w", err)
	}
	return nil
}

// SignerKeys returns the hex public keys of every peer that signed this
// block, for double-sign detection (TESTABLE PROPERTY 2).
func (b *CommittedBlock) SignerKeys() []string {
	return b.Signatures.Keys()
}
