package core_test

import (
	"testing"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
)

// memBlockStore is a minimal in-memory core.BlockStore fake for exercising
// Chain without a real storage backend.
type memBlockStore struct {
	byHash   map[string]*core.CommittedBlock
	byHeight map[int64]*core.CommittedBlock
	tip      string
	invalid  []string
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{
		byHash:   make(map[string]*core.CommittedBlock),
		byHeight: make(map[int64]*core.CommittedBlock),
	}
}

func (s *memBlockStore) GetBlock(hash string) (*core.CommittedBlock, error) {
	b, ok := s.byHash[hash]
	if !ok {
		return nil, core.ErrNotFound
	}
	return b, nil
}

func (s *memBlockStore) GetBlockByHeight(height int64) (*core.CommittedBlock, error) {
	b, ok := s.byHeight[height]
	if !ok {
		return nil, core.ErrNotFound
	}
	return b, nil
}

func (s *memBlockStore) GetTip() (string, error) { return s.tip, nil }

func (s *memBlockStore) CommitBlock(block *core.CommittedBlock) error {
	s.byHash[block.Hash()] = block
	s.byHeight[block.Header.Height] = block
	s.tip = block.Hash()
	return nil
}

func (s *memBlockStore) AppendInvalidated(hash string) error {
	s.invalid = append(s.invalid, hash)
	return nil
}

func (s *memBlockStore) InvalidatedBlocks() ([]string, error) { return s.invalid, nil }

func TestChainAppendAndInit(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	store := newMemBlockStore()
	chain := core.NewChain(store)
	if err := chain.Init(); err != nil {
		t.Fatalf("Init on fresh chain: %v", err)
	}
	if chain.Tip() != nil {
		t.Error("expected nil tip on fresh chain")
	}

	genesis := core.NewPendingBlock(0, "", 0, nil).Validate(func(*core.Transaction) error { return nil })
	genesis.Sign(priv)
	committed := genesis.Promote()

	if err := chain.Append(committed, 1); err != nil {
		t.Fatalf("Append genesis: %v", err)
	}
	if chain.Height() != 0 {
		t.Fatalf("expected height 0, got %d", chain.Height())
	}

	next := core.NewPendingBlock(1, committed.Hash(), 0, nil).Validate(func(*core.Transaction) error { return nil })
	next.Sign(priv)
	nextCommitted := next.Promote()
	if err := chain.Append(nextCommitted, 1); err != nil {
		t.Fatalf("Append next: %v", err)
	}
	if chain.Height() != 1 {
		t.Fatalf("expected height 1, got %d", chain.Height())
	}

	// A fresh Chain wrapping the same store should resume at the same tip.
	resumed := core.NewChain(store)
	if err := resumed.Init(); err != nil {
		t.Fatalf("Init on populated store: %v", err)
	}
	if resumed.Height() != 1 {
		t.Fatalf("expected resumed height 1, got %d", resumed.Height())
	}
	if resumed.Tip().Hash() != nextCommitted.Hash() {
		t.Error("expected resumed tip to match last committed block")
	}
}

func TestChainAppendRejectsQuorumFailure(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	store := newMemBlockStore()
	chain := core.NewChain(store)

	genesis := core.NewPendingBlock(0, "", 0, nil).Validate(func(*core.Transaction) error { return nil })
	genesis.Sign(priv)
	committed := genesis.Promote()

	if err := chain.Append(committed, 2); err == nil {
		t.Error("expected Append to fail when required quorum exceeds signer count")
	}
}

func TestChainRecordInvalidated(t *testing.T) {
	store := newMemBlockStore()
	chain := core.NewChain(store)
	if err := chain.RecordInvalidated("deadbeef"); err != nil {
		t.Fatal(err)
	}
	got, err := chain.InvalidatedBlocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "deadbeef" {
		t.Fatalf("unexpected invalidated log: %+v", got)
	}
}
