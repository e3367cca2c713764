package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/pipeline"
)

type fakeWSV struct {
	mu      sync.Mutex
	applied []int64
}

func (w *fakeWSV) GetAccount(string) (*core.Account, error)        { return nil, core.ErrNotFound }
func (w *fakeWSV) SetAccount(*core.Account) error                   { return nil }
func (w *fakeWSV) Snapshot() (int, error)                           { return 0, nil }
func (w *fakeWSV) RevertToSnapshot(int) error                       { return nil }
func (w *fakeWSV) ComputeRoot() string                              { return "" }
func (w *fakeWSV) Commit() error                                    { return nil }
func (w *fakeWSV) Apply(block *core.CommittedBlock) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applied = append(w.applied, block.Header.Height)
	return nil
}
func (w *fakeWSV) heights() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int64, len(w.applied))
	copy(out, w.applied)
	return out
}

type fakeBlockLog struct {
	mu      sync.Mutex
	appended []int64
}

func (l *fakeBlockLog) Append(block *core.CommittedBlock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended = append(l.appended, block.Header.Height)
	return nil
}

type emptyQueue struct{}

func (emptyQueue) Dequeue(int) []*core.Transaction { return nil }

func signedBlock(t *testing.T, priv crypto.PrivateKey, height int64, prevHash string) *core.CommittedBlock {
	t.Helper()
	block := core.NewPendingBlock(height, prevHash, 0, nil).Validate(func(*core.Transaction) error { return nil })
	block.Sign(priv)
	return block.Promote()
}

func TestOrchestratorAppliesBlocksInHeightOrder(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	wsv := &fakeWSV{}
	blockLog := &fakeBlockLog{}
	orch := pipeline.New(nil, emptyQueue{}, wsv, blockLog, 0, nil)

	genesis := signedBlock(t, priv, 0, "")
	b1 := signedBlock(t, priv, 1, genesis.Hash())
	b2 := signedBlock(t, priv, 2, b1.Hash())

	// Deliver out of order: height 2 arrives before heights 0 and 1.
	orch.OnCommit(b2)
	orch.OnCommit(genesis)
	orch.OnCommit(b1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(wsv.heights()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	got := wsv.heights()
	if len(got) != 3 {
		t.Fatalf("expected 3 blocks applied, got %d: %+v", len(got), got)
	}
	for i, h := range got {
		if h != int64(i) {
			t.Fatalf("expected height-ordered application, got %+v", got)
		}
	}
}

func TestOrchestratorAcceptDelegatesToOnCommit(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	wsv := &fakeWSV{}
	blockLog := &fakeBlockLog{}
	orch := pipeline.New(nil, emptyQueue{}, wsv, blockLog, 0, nil)

	genesis := signedBlock(t, priv, 0, "")
	if err := orch.Accept(genesis); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go orch.Run(ctx)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(wsv.heights()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected Accept's block to be applied via Run")
}
