package genesis_test

import (
	"testing"

	"github.com/tolelom/sumeragi/config"
	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/genesis"
	"github.com/tolelom/sumeragi/internal/testutil"
	"github.com/tolelom/sumeragi/peer"
	"github.com/tolelom/sumeragi/sumeragi"
)

// fakeTransport discards every message; genesis bootstrap in these tests
// never exercises Sumeragi's wire protocol, only round setup.
type fakeTransport struct{}

func (fakeTransport) SendTo(peer.ID, sumeragi.Message) error      { return nil }
func (fakeTransport) Broadcast([]peer.ID, sumeragi.Message) error { return nil }

func newEngine(t *testing.T, wsv core.WorldStateView, chain *core.Chain) *sumeragi.Engine {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	self := peer.ID{Address: ":30303", PublicKey: pub}
	cfg := sumeragi.Config{Self: self, PrivateKey: priv, MaxBlockTxs: 10}
	emitter := events.NewEmitter(nil)
	return sumeragi.New(cfg, fakeTransport{}, wsv, core.NewMempool(), chain, emitter, nil, func(*core.CommittedBlock) {})
}

func TestBootstrapFreshGenesisSeedsAllocAndStartsRoundZero(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	wsv := testutil.NewStateDB()
	chain := core.NewChain(testutil.NewMemBlockStore())
	if err := chain.Init(); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(t, wsv, chain)

	cfg := &config.Config{
		Peers: []config.PeerEntry{{Address: ":30303", PublicKey: pub.Hex()}},
		Genesis: config.GenesisConfig{
			ChainID: "test",
			Alloc:   map[string]uint64{pub.Hex(): 1000},
		},
	}

	if err := genesis.Bootstrap(cfg, engine, chain, wsv); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	account, err := wsv.GetAccount(pub.Hex())
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.Balance != 1000 {
		t.Fatalf("expected seeded balance 1000, got %d", account.Balance)
	}

	if _, ok := engine.Role(); !ok {
		t.Fatal("expected engine to have an active round after Bootstrap")
	}
}

func TestBootstrapRejectsEmptyPeerSet(t *testing.T) {
	wsv := testutil.NewStateDB()
	chain := core.NewChain(testutil.NewMemBlockStore())
	engine := newEngine(t, wsv, chain)

	cfg := &config.Config{Genesis: config.GenesisConfig{ChainID: "test"}}
	if err := genesis.Bootstrap(cfg, engine, chain, wsv); err == nil {
		t.Error("expected Bootstrap to reject an empty peer set")
	}
}

func TestBootstrapResumesFromExistingTip(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	wsv := testutil.NewStateDB()
	chain := core.NewChain(testutil.NewMemBlockStore())

	existing := core.NewPendingBlock(0, "", 0, nil).Validate(func(*core.Transaction) error { return nil })
	existing.Sign(priv)
	committed := existing.Promote()
	if err := chain.Append(committed, 1); err != nil {
		t.Fatal(err)
	}

	engine := newEngine(t, wsv, chain)
	cfg := &config.Config{
		Peers:   []config.PeerEntry{{Address: ":30303", PublicKey: pub.Hex()}},
		Genesis: config.GenesisConfig{ChainID: "test"},
	}

	if err := genesis.Bootstrap(cfg, engine, chain, wsv); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, ok := engine.Role(); !ok {
		t.Fatal("expected engine to have an active round after resuming from tip")
	}
}
