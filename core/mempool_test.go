package core_test

import (
	"testing"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
)

func TestMempoolAddGetRemove(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	m := core.NewMempool()
	tx := mustTx(t, priv, pub, 0)

	if err := m.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(tx); err == nil {
		t.Error("expected duplicate Add to fail")
	}
	got, ok := m.Get(tx.ID)
	if !ok || got != tx {
		t.Fatal("Get did not return the added transaction")
	}
	if m.Size() != 1 {
		t.Fatalf("expected size 1, got %d", m.Size())
	}

	m.Remove([]string{tx.ID})
	if m.Size() != 0 {
		t.Fatalf("expected size 0 after Remove, got %d", m.Size())
	}
	if _, ok := m.Get(tx.ID); ok {
		t.Error("expected Get to miss after Remove")
	}
}

func TestMempoolAddRejectsBadSignature(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	m := core.NewMempool()
	tx, err := core.NewTransaction(core.TxTransfer, pub.Hex(), 0, 0, core.TransferPayload{To: "x", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	tx.ID = tx.Hash()
	tx.Signature = "not-a-real-signature"
	if err := m.Add(tx); err == nil {
		t.Error("expected Add to reject unsigned/invalid transaction")
	}
}

func TestMempoolPendingPreservesInsertionOrder(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	m := core.NewMempool()
	tx1 := mustTx(t, priv, pub, 0)
	tx2 := mustTx(t, priv, pub, 1)
	tx3 := mustTx(t, priv, pub, 2)
	for _, tx := range []*core.Transaction{tx1, tx2, tx3} {
		if err := m.Add(tx); err != nil {
			t.Fatal(err)
		}
	}

	pending := m.Pending(2)
	if len(pending) != 2 || pending[0].ID != tx1.ID || pending[1].ID != tx2.ID {
		t.Fatalf("unexpected pending order: %+v", pending)
	}
}

func TestMempoolDequeueRemovesReturnedTransactions(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	m := core.NewMempool()
	tx1 := mustTx(t, priv, pub, 0)
	tx2 := mustTx(t, priv, pub, 1)
	if err := m.Add(tx1); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(tx2); err != nil {
		t.Fatal(err)
	}

	dequeued := m.Dequeue(1)
	if len(dequeued) != 1 || dequeued[0].ID != tx1.ID {
		t.Fatalf("expected tx1 dequeued first, got %+v", dequeued)
	}
	if m.Size() != 1 {
		t.Fatalf("expected 1 remaining after dequeue, got %d", m.Size())
	}
	if _, ok := m.Get(tx1.ID); ok {
		t.Error("dequeued transaction should no longer be in the pool")
	}

	rest := m.Dequeue(10)
	if len(rest) != 1 || rest[0].ID != tx2.ID {
		t.Fatalf("expected remaining tx2 on second dequeue, got %+v", rest)
	}
	if m.Size() != 0 {
		t.Fatalf("expected empty pool, got size %d", m.Size())
	}
}
