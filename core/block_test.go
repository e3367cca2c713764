package core_test

import (
	"testing"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
)

func TestPendingBlockValidateSplitsAcceptedAndRejected(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	good := mustTx(t, priv, pub, 0)
	bad := mustTx(t, priv, pub, 1)

	block := core.NewPendingBlock(1, "prevhash", 0, []*core.Transaction{good, bad})

	valid := block.Validate(func(tx *core.Transaction) error {
		if tx == bad {
			return errRejected
		}
		return nil
	})

	if len(valid.Transactions) != 1 || valid.Transactions[0] != good {
		t.Fatalf("expected only good tx accepted, got %d accepted", len(valid.Transactions))
	}
	if len(valid.RejectedTransactions) != 1 || valid.RejectedTransactions[0] != bad {
		t.Fatalf("expected bad tx rejected, got %d rejected", len(valid.RejectedTransactions))
	}
	if valid.Signatures.Len() != 0 {
		t.Error("freshly validated block should carry no signatures yet")
	}
}

var errRejected = errRejectedType{}

type errRejectedType struct{}

func (errRejectedType) Error() string { return "rejected" }

func TestValidBlockSignAndVerify(t *testing.T) {
	priv1, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	priv2, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := core.NewPendingBlock(1, "prevhash", 0, nil).Validate(func(*core.Transaction) error { return nil })
	block.Sign(priv1)
	block.Sign(priv2)

	if block.Signatures.Len() != 2 {
		t.Fatalf("expected 2 signatures, got %d", block.Signatures.Len())
	}
	if err := block.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures: %v", err)
	}
}

func TestValidBlockPromoteAndChainVerify(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	genesis := core.NewPendingBlock(0, "", 0, nil).Validate(func(*core.Transaction) error { return nil })
	genesis.Sign(priv)
	genesisCommitted := genesis.Promote()

	if err := genesisCommitted.VerifyChain(nil); err != nil {
		t.Errorf("genesis VerifyChain(nil): %v", err)
	}

	next := core.NewPendingBlock(1, genesisCommitted.Hash(), 0, nil).Validate(func(*core.Transaction) error { return nil })
	next.Sign(priv)
	nextCommitted := next.Promote()

	if err := nextCommitted.VerifyChain(genesisCommitted); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}
	if err := nextCommitted.VerifyQuorum(1); err != nil {
		t.Errorf("VerifyQuorum(1): %v", err)
	}
	if err := nextCommitted.VerifyQuorum(2); err == nil {
		t.Error("VerifyQuorum(2) should fail with only one signer")
	}
}

func TestCommittedBlockVerifyChainRejectsBrokenLinkage(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	genesis := core.NewPendingBlock(0, "", 0, nil).Validate(func(*core.Transaction) error { return nil }).Promote()
	bad := core.NewPendingBlock(1, "wrong-prev-hash", 0, nil).Validate(func(*core.Transaction) error { return nil })
	bad.Sign(priv)
	badCommitted := bad.Promote()

	if err := badCommitted.VerifyChain(genesis); err == nil {
		t.Error("expected linkage error for mismatched previous hash")
	}

	skipHeight := core.NewPendingBlock(5, genesis.Hash(), 0, nil).Validate(func(*core.Transaction) error { return nil }).Promote()
	if err := skipHeight.VerifyChain(genesis); err == nil {
		t.Error("expected height discontinuity error")
	}
}

func mustTx(t *testing.T, priv crypto.PrivateKey, pub crypto.PublicKey, nonce uint64) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(core.TxTransfer, pub.Hex(), nonce, 0, core.TransferPayload{To: "dead", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	tx.Sign(priv)
	return tx
}
