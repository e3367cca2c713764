// Package pipeline drives the consensus core from the outside: it polls an
// external transaction queue, feeds transactions into the Sumeragi engine,
// and fans every block the engine commits out to the collaborators that
// must independently persist or act on it (§4.6).
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/metrics"
	"github.com/tolelom/sumeragi/sumeragi"
)

// TransactionQueue is the external collaborator Orchestrator polls for new
// client transactions — core.Mempool implements this, and the rpc
// package's sendTx method is what fills it.
type TransactionQueue interface {
	// Dequeue returns up to n transactions waiting to be forwarded into the
	// consensus core, removing them from the queue.
	Dequeue(n int) []*core.Transaction
}

// BlockLog is the second of the two independent sinks every committed block
// fans out to, distinct from the WorldStateView: an append-only audit trail
// of committed blocks, kept even if WSV application fails.
type BlockLog interface {
	Append(block *core.CommittedBlock) error
}

// Orchestrator owns the Engine's external inputs (the transaction queue) and
// outputs (committed blocks), keeping both off the Engine's own call stack
// so a slow sink or a slow queue does not block round processing while the
// committed-block channel has room (see OnCommit).
type Orchestrator struct {
	engine   *sumeragi.Engine
	queue    TransactionQueue
	wsv      core.WorldStateView
	blockLog BlockLog
	log      *logrus.Entry

	pollInterval time.Duration
	batchSize    int

	committed chan *core.CommittedBlock

	mu      sync.Mutex
	buffer  map[int64]*core.CommittedBlock // height -> out-of-order arrivals awaiting their turn
	nextH   int64
}

// New creates an Orchestrator. nextHeight is the height the pipeline should
// apply next (typically chain.Height()+1, or 1 for a fresh chain).
func New(engine *sumeragi.Engine, queue TransactionQueue, wsv core.WorldStateView, blockLog BlockLog, nextHeight int64, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	o := &Orchestrator{
		engine:       engine,
		queue:        queue,
		wsv:          wsv,
		blockLog:     blockLog,
		log:          log,
		pollInterval: 200 * time.Millisecond,
		batchSize:    500,
		committed:    make(chan *core.CommittedBlock, 64),
		buffer:       make(map[int64]*core.CommittedBlock),
		nextH:        nextHeight,
	}
	return o
}

// SetPollInterval overrides the default transaction-queue poll cadence.
func (o *Orchestrator) SetPollInterval(d time.Duration) { o.pollInterval = d }

// SetEngine wires the engine transactions are submitted to. Engine and
// Orchestrator are constructed in a cycle (the engine needs OnCommit, the
// orchestrator needs the engine), so this is set after both exist.
func (o *Orchestrator) SetEngine(e *sumeragi.Engine) { o.engine = e }

// OnCommit is the callback wired into sumeragi.Engine's onCommit parameter.
// Blocks are handed to a buffered channel and applied by Run's own
// goroutine, respecting height order. If that channel is full, OnCommit
// applies the block itself on the caller's goroutine (through the same
// height-ordered buffer), so it never waits on the channel.
func (o *Orchestrator) OnCommit(block *core.CommittedBlock) {
	select {
	case o.committed <- block:
	default:
		o.log.WithField("height", block.Header.Height).Error("committed-block channel full, applying synchronously")
		o.bufferAndApply(block)
	}
}

// Accept implements network.BlockSink for blocks arriving via block-sync
// rather than this peer's own participation in a round.
func (o *Orchestrator) Accept(block *core.CommittedBlock) error {
	o.OnCommit(block)
	return nil
}

// Run polls the transaction queue and drains committed blocks in height
// order until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.drainQueue()
			if o.engine != nil {
				o.engine.PollLeader()
			}
		case block := <-o.committed:
			o.bufferAndApply(block)
		}
	}
}

func (o *Orchestrator) drainQueue() {
	for _, tx := range o.queue.Dequeue(o.batchSize) {
		if err := o.engine.SubmitTransaction(tx); err != nil {
			o.log.WithField("tx", tx.ID).WithError(err).Debug("transaction rejected at submission")
		}
	}
}

// bufferAndApply holds out-of-order arrivals until every lower height has
// been applied, then applies as many contiguous heights as are ready. This
// is the ordering guarantee block-sync relies on: the engine itself always
// commits in order for rounds it participates in, but blocks learned via
// network.Syncer can arrive in any order.
func (o *Orchestrator) bufferAndApply(block *core.CommittedBlock) {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := block.Header.Height
	if h < o.nextH {
		return // already applied
	}
	o.buffer[h] = block

	var ready []*core.CommittedBlock
	for {
		b, ok := o.buffer[o.nextH]
		if !ok {
			break
		}
		ready = append(ready, b)
		delete(o.buffer, o.nextH)
		o.nextH++
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Header.Height < ready[j].Header.Height })
	for _, b := range ready {
		if err := o.fanOut(b); err != nil {
			o.log.WithField("height", b.Header.Height).WithError(err).Error("fan-out to sinks failed")
		}
	}
}

// fanOut applies block to the WorldStateView and the block log concurrently
// and waits for both — the "two independent sinks" every committed block
// reaches (§4.6).
func (o *Orchestrator) fanOut(block *core.CommittedBlock) error {
	start := time.Now()
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := o.wsv.Apply(block); err != nil {
			return fmt.Errorf("wsv apply: %w", err)
		}
		return nil
	})
	if o.blockLog != nil {
		g.Go(func() error {
			if err := o.blockLog.Append(block); err != nil {
				return fmt.Errorf("block log append: %w", err)
			}
			return nil
		})
	}
	err := g.Wait()
	metrics.ObserveCommitLatency(time.Since(start))
	return err
}
