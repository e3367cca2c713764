package sumeragi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/peer"
	"github.com/tolelom/sumeragi/topology"
	"github.com/tolelom/sumeragi/vm"
)

// Transport is the Engine's outbound collaborator: how messages actually
// reach other peers. Implementations live in the network package.
type Transport interface {
	SendTo(target peer.ID, msg Message) error
	Broadcast(targets []peer.ID, msg Message) error
}

// Timeouts configures the three round timers. Zero durations disable the
// corresponding timer (used by single-peer genesis rounds, §4.7).
type Timeouts struct {
	NoTransactionReceipt time.Duration
	BlockCreation        time.Duration
	Commit               time.Duration
}

// Config bundles the fixed parameters an Engine needs for its lifetime.
type Config struct {
	Self        peer.ID
	PrivateKey  crypto.PrivateKey
	MaxBlockTxs int
	Timeouts    Timeouts

	// MaxViewChangesBeforeReshuffle bounds how many consecutive
	// RotateViewChange rotations this peer will apply before forcing a full
	// ForceReshuffle instead (config's n_topology_shifts_before_reshuffle).
	// 0 means never force: re-sort only happens on commit.
	MaxViewChangesBeforeReshuffle uint32
}

// Engine drives one peer's participation in the Sumeragi protocol: it
// builds, forwards, signs and commits blocks according to the current
// topology's role assignment, and recovers from stalls via view change.
// Concurrency model: a single mutex serializes round transitions (the
// protocol work itself is small and sequential, per-block); the potentially
// slow collaborators (Transport, WorldStateView, Mempool) are the pieces
// that are expected to block, so Engine never holds its own lock while
// calling them.
type Engine struct {
	cfg       Config
	transport Transport
	wsv       core.WorldStateView
	mempool   *core.Mempool
	chain     *core.Chain
	emitter   *events.Emitter
	log       *logrus.Entry

	onCommit func(*core.CommittedBlock)

	mu               sync.Mutex
	round            *RoundState
	clock            *RoundClock
	viewChangeVotes  map[uint32]map[string]bool // view -> voter pubkey hex -> voted
	pendingTxs       map[string]time.Time        // forwarded tx id -> forward time, for NoTransactionReceipt
	viewChangeStreak uint32                      // consecutive RotateViewChange calls since the last Reshuffle
}

// New creates an Engine. onCommit is invoked (off the Engine's own
// goroutine, synchronously within HandleMessage/StartRound's caller) with
// every block this peer learns has committed — the pipeline orchestrator
// wires this to WorldStateView.Apply and the block log.
func New(cfg Config, transport Transport, wsv core.WorldStateView, mempool *core.Mempool, chain *core.Chain, emitter *events.Emitter, log *logrus.Entry, onCommit func(*core.CommittedBlock)) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		cfg:             cfg,
		transport:       transport,
		wsv:             wsv,
		mempool:         mempool,
		chain:           chain,
		emitter:         emitter,
		log:             log,
		onCommit:        onCommit,
		viewChangeVotes: make(map[uint32]map[string]bool),
		pendingTxs:      make(map[string]time.Time),
	}
	e.clock = NewRoundClock(map[Timeout]time.Duration{
		TimeoutNoTransactionReceipt: cfg.Timeouts.NoTransactionReceipt,
		TimeoutBlockCreation:        cfg.Timeouts.BlockCreation,
		TimeoutCommit:               cfg.Timeouts.Commit,
	}, e.onTimeout)
	return e
}

// Role returns this peer's role in the round currently governing height.
func (e *Engine) Role() (topology.Role, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return 0, false
	}
	return e.round.Topology().RoleOf(e.cfg.Self)
}

// StartRound begins a fresh round at height under topo. Called once at
// startup (from the genesis bootstrap or a loaded chain tip) and again every
// time a round concludes, by commit or by exhausting a view change.
func (e *Engine) StartRound(height int64, topo topology.Topology) {
	e.mu.Lock()
	e.round = NewRoundState(height, topo)
	e.viewChangeVotes = make(map[uint32]map[string]bool)
	role, _ := topo.RoleOf(e.cfg.Self)
	e.mu.Unlock()

	e.clock.DisarmAll()
	// corr_id labels this round-start log line; it is a log aid only, never
	// part of the wire protocol.
	corrID := uuid.NewString()
	e.log.WithFields(logrus.Fields{"height": height, "role": role, "view": topo.ViewChangeCount(), "corr_id": corrID}).Info("round started")

	switch role {
	case topology.RoleLeader:
		e.tryCreateBlock()
	default:
		e.clock.Arm(TimeoutBlockCreation)
	}
}

// SubmitTransaction is the entry point for a client submission (via the
// pipeline orchestrator's polling of the transaction queue, §4.6). If this
// peer is the current Leader it enqueues directly; otherwise it forwards to
// the Leader and arms its own receipt timer.
func (e *Engine) SubmitTransaction(tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("sumeragi: reject transaction %s: %w", tx.ID, err)
	}

	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil {
		return fmt.Errorf("sumeragi: no active round")
	}
	topo := round.Topology()
	role, _ := topo.RoleOf(e.cfg.Self)

	if role == topology.RoleLeader {
		return e.mempool.Add(tx)
	}

	e.mu.Lock()
	e.pendingTxs[tx.ID] = time.Now()
	e.mu.Unlock()
	e.clock.Arm(TimeoutNoTransactionReceipt)

	return e.transport.SendTo(topo.Leader(), Message{
		Kind:                  KindTransactionForwarded,
		From:                  e.cfg.Self,
		Height:                round.Height(),
		TransactionForwarded:  &TransactionForwarded{Transaction: tx},
	})
}

// HandleMessage processes one inbound wire message. It is safe to call
// concurrently from multiple network-layer reader goroutines.
func (e *Engine) HandleMessage(msg Message) error {
	switch msg.Kind {
	case KindTransactionForwarded:
		return e.onTransactionForwarded(msg)
	case KindTransactionReceived:
		return e.onTransactionReceived(msg)
	case KindBlockCreated:
		return e.onBlockCreated(msg)
	case KindBlockSigned:
		return e.onBlockSigned(msg)
	case KindBlockCommitted:
		return e.onBlockCommitted(msg)
	case KindViewChangeSuggested:
		return e.onViewChangeSuggested(msg)
	default:
		return fmt.Errorf("sumeragi: unhandled message kind %q", msg.Kind)
	}
}

func (e *Engine) onTransactionForwarded(msg Message) error {
	if msg.TransactionForwarded == nil || msg.TransactionForwarded.Transaction == nil {
		return fmt.Errorf("sumeragi: empty transaction_forwarded from %s", msg.From)
	}
	tx := msg.TransactionForwarded.Transaction
	if err := e.mempool.Add(tx); err != nil {
		return fmt.Errorf("sumeragi: add forwarded tx %s: %w", tx.ID, err)
	}
	return e.transport.SendTo(msg.From, Message{
		Kind:                KindTransactionReceived,
		From:                e.cfg.Self,
		Height:              msg.Height,
		TransactionReceived: &TransactionReceived{TransactionID: tx.ID},
	})
}

func (e *Engine) onTransactionReceived(msg Message) error {
	if msg.TransactionReceived == nil {
		return fmt.Errorf("sumeragi: empty transaction_received from %s", msg.From)
	}
	e.mu.Lock()
	delete(e.pendingTxs, msg.TransactionReceived.TransactionID)
	outstanding := len(e.pendingTxs)
	e.mu.Unlock()
	if outstanding == 0 {
		e.clock.Disarm(TimeoutNoTransactionReceipt)
	}
	return nil
}

// PollLeader gives the Leader a chance to form a block once the mempool has
// something to propose (§4.3/§4.6). StartRound only calls tryCreateBlock
// once, at round start; a transaction that arrives afterward (the common
// case — SubmitTransaction just adds it to the mempool) would otherwise sit
// unproposed until the next round starts by accident. The pipeline
// orchestrator calls this on every transaction-queue poll tick.
func (e *Engine) PollLeader() {
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil || round.Phase() != PhaseCollecting {
		return
	}
	role, _ := round.Topology().RoleOf(e.cfg.Self)
	if role != topology.RoleLeader {
		return
	}
	if e.mempool.Size() == 0 {
		return
	}
	e.tryCreateBlock()
}

// tryCreateBlock is the Leader's half of the happy path (§4.3): take pending
// transactions, form a PendingBlock, validate it against the WSV, sign it,
// and broadcast BlockCreated to the rest of the voting set.
func (e *Engine) tryCreateBlock() {
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil {
		return
	}
	limit := e.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	txs := e.mempool.Pending(limit)

	// An idle cluster must not produce an unbounded stream of empty
	// committed blocks: only the genesis round (height 0, seeded from
	// config.Genesis.Alloc rather than a transaction) is allowed through
	// with nothing pending. Everywhere else, wait for PollLeader to retry
	// once the mempool has something to propose.
	if round.Height() > 0 && len(txs) == 0 {
		return
	}

	var prevHash string
	if tip := e.chain.Tip(); tip != nil {
		prevHash = tip.Hash()
	}
	topo := round.Topology()
	pending := core.NewPendingBlock(round.Height(), prevHash, topo.ViewChangeCount(), txs)
	round.SetPending(pending)

	valid := e.validateBlock(pending)
	valid.Sign(e.cfg.PrivateKey)
	round.SetValid(valid)
	if err := round.MarkSigned(valid.Hash()); err != nil {
		e.log.WithError(err).Error("leader refused to sign its own block")
		return
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{Type: events.EventCreated, BlockHeight: round.Height(), BlockHash: valid.Hash()})
		e.emitter.Emit(events.Event{Type: events.EventValidated, BlockHeight: round.Height(), BlockHash: valid.Hash()})
		e.emitter.Emit(events.Event{Type: events.EventSigned, BlockHeight: round.Height(), BlockHash: valid.Hash()})
	}

	// A single-peer (genesis bootstrap, §4.7) or otherwise degenerate
	// topology may already satisfy quorum with just the Leader's own
	// signature; tallySignature commits in that case instead of waiting
	// for BlockSigned replies that will never come.
	if err := e.tallySignature(round, valid, e.cfg.Self.PublicKey.Hex()); err != nil {
		e.log.WithError(err).Error("leader self-tally failed")
		return
	}
	if round.Phase() == PhaseCommitted {
		return
	}

	others := otherVotingPeers(topo, e.cfg.Self)
	e.clock.Arm(TimeoutCommit)
	if err := e.transport.Broadcast(others, Message{
		Kind:         KindBlockCreated,
		From:         e.cfg.Self,
		Height:       round.Height(),
		BlockCreated: &BlockCreated{Block: valid},
	}); err != nil {
		e.log.WithError(err).Error("broadcast block_created failed")
	}
}

// validateBlock runs pending's transactions through stateful validation
// against a throwaway snapshot of the WSV, then discards every speculative
// effect: the real application happens once via WorldStateView.Apply when
// the block commits (§6 "Outbound to WSV"). Validation exists only to split
// transactions into accepted/rejected and to compute the narrowed TxRoot.
func (e *Engine) validateBlock(pending *core.PendingBlock) *core.ValidBlock {
	outer, err := e.wsv.Snapshot()
	if err != nil {
		e.log.WithError(err).Error("snapshot failed before validation")
		return pending.Validate(func(*core.Transaction) error { return fmt.Errorf("wsv unavailable") })
	}
	valid := pending.Validate(e.validateTx)
	if err := e.wsv.RevertToSnapshot(outer); err != nil {
		e.log.WithError(err).Error("revert after speculative validation failed")
	}
	return valid
}

func (e *Engine) validateTx(tx *core.Transaction) error {
	snapID, err := e.wsv.Snapshot()
	if err != nil {
		return err
	}
	e.mu.Lock()
	height := e.round.Height()
	e.mu.Unlock()
	fauxBlock := &core.CommittedBlock{Header: core.BlockHeader{Height: height}}
	if err := vm.NewExecutor(e.wsv, nil).ExecuteTx(fauxBlock, tx); err != nil {
		_ = e.wsv.RevertToSnapshot(snapID)
		if e.emitter != nil {
			e.emitter.Emit(events.Event{Type: events.EventRejected, TxID: tx.ID, Data: map[string]any{"reason": err.Error()}})
		}
		return err
	}
	return nil
}

// onBlockCreated handles the Leader's broadcast: a Validating Peer or Proxy
// Tail re-validates the block independently and signs it.
func (e *Engine) onBlockCreated(msg Message) error {
	if msg.BlockCreated == nil || msg.BlockCreated.Block == nil {
		return fmt.Errorf("sumeragi: empty block_created from %s", msg.From)
	}
	e.clock.Disarm(TimeoutBlockCreation)

	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil || round.Height() != msg.Height {
		return fmt.Errorf("sumeragi: block_created for height %d, round is at a different height", msg.Height)
	}
	topo := round.Topology()
	leader := topo.Leader()
	if !leader.Equal(msg.From) {
		return fmt.Errorf("sumeragi: block_created from non-leader %s", msg.From)
	}

	block := msg.BlockCreated.Block
	if block.Header.Height > 0 && len(block.Transactions) == 0 && len(block.RejectedTransactions) == 0 {
		// Refuse to sign an empty non-genesis block (S5): a stalled or
		// malicious Leader proposing nothing must be removed by view
		// change, not rubber-stamped. Arm TimeoutCommit directly since this
		// peer never reaches the normal post-sign arm below.
		e.clock.Arm(TimeoutCommit)
		return fmt.Errorf("sumeragi: refusing to sign empty block at height %d", msg.Height)
	}

	outer, err := e.wsv.Snapshot()
	if err != nil {
		return err
	}
	allTxs := make([]*core.Transaction, 0, len(block.Transactions)+len(block.RejectedTransactions))
	allTxs = append(allTxs, block.Transactions...)
	allTxs = append(allTxs, block.RejectedTransactions...)
	recomputed := (&core.PendingBlock{Header: block.Header, Transactions: allTxs}).Validate(e.validateTx)
	_ = e.wsv.RevertToSnapshot(outer)
	if recomputed.Hash() != block.Hash() {
		return fmt.Errorf("sumeragi: independent validation of block at height %d produced a different hash", msg.Height)
	}

	round.SetValid(block)
	block.Sign(e.cfg.PrivateKey)
	if err := round.MarkSigned(block.Hash()); err != nil {
		return err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{Type: events.EventValidated, BlockHeight: msg.Height, BlockHash: block.Hash()})
		e.emitter.Emit(events.Event{Type: events.EventSigned, BlockHeight: msg.Height, BlockHash: block.Hash()})
	}

	role, _ := topo.RoleOf(e.cfg.Self)
	signedMsg := Message{
		Kind:   KindBlockSigned,
		From:   e.cfg.Self,
		Height: msg.Height,
		BlockSigned: &BlockSigned{
			BlockHash: block.Hash(),
			Signer:    e.cfg.Self.PublicKey.Hex(),
			Signature: block.Signatures.Pairs()[e.cfg.Self.PublicKey.Hex()],
		},
	}
	if role == topology.RoleProxyTail {
		e.clock.Arm(TimeoutCommit)
		return e.tallySignature(round, block, e.cfg.Self.PublicKey.Hex())
	}
	e.clock.Arm(TimeoutCommit)
	return e.transport.SendTo(topo.ProxyTail(), signedMsg)
}

// onBlockSigned is the Proxy Tail's half: accumulate signatures until
// BlockSignatureQuorum, then promote and broadcast BlockCommitted.
func (e *Engine) onBlockSigned(msg Message) error {
	if msg.BlockSigned == nil {
		return fmt.Errorf("sumeragi: empty block_signed from %s", msg.From)
	}
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil {
		return fmt.Errorf("sumeragi: no active round")
	}
	topo := round.Topology()
	role, _ := topo.RoleOf(e.cfg.Self)
	if role != topology.RoleProxyTail {
		return fmt.Errorf("sumeragi: block_signed received but this peer is not proxy tail")
	}
	block := round.Valid()
	if block == nil || block.Hash() != msg.BlockSigned.BlockHash {
		return fmt.Errorf("sumeragi: block_signed for unknown or stale block hash")
	}
	pub, err := crypto.PubKeyFromHex(msg.BlockSigned.Signer)
	if err != nil {
		return err
	}
	if err := crypto.Verify(pub, []byte(block.Hash()), msg.BlockSigned.Signature); err != nil {
		return fmt.Errorf("sumeragi: invalid block_signed signature from %s: %w", msg.From, err)
	}
	block.Signatures.Add(pub, msg.BlockSigned.Signature)
	return e.tallySignature(round, block, msg.BlockSigned.Signer)
}

// tallySignature checks whether block now carries enough signatures to
// commit, and if so promotes and broadcasts it. Called both when the Proxy
// Tail signs its own copy and when a BlockSigned arrives from someone else.
func (e *Engine) tallySignature(round *RoundState, block *core.ValidBlock, signerHex string) error {
	topo := round.Topology()
	if block.Signatures.Len() < topo.BlockSignatureQuorum() {
		round.AwaitQuorum()
		return nil
	}
	committed := block.Promote()
	if err := e.chain.Append(committed, topo.BlockSignatureQuorum()); err != nil {
		return fmt.Errorf("sumeragi: append committed block: %w", err)
	}
	e.finishRound(round, committed)

	all := topo.Peers()
	return e.transport.Broadcast(otherVotingAndObservingPeers(all, e.cfg.Self), Message{
		Kind:           KindBlockCommitted,
		From:           e.cfg.Self,
		Height:         committed.Header.Height,
		BlockCommitted: &BlockCommitted{Block: committed},
	})
}

// onBlockCommitted handles a peer (any role) learning of a commit it didn't
// directly participate in accumulating — the common case for Observing
// Peers, and the recovery path for a Validating Peer whose own
// TimeoutCommit fired just before the broadcast arrived.
func (e *Engine) onBlockCommitted(msg Message) error {
	if msg.BlockCommitted == nil || msg.BlockCommitted.Block == nil {
		return fmt.Errorf("sumeragi: empty block_committed from %s", msg.From)
	}
	block := msg.BlockCommitted.Block

	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil {
		return fmt.Errorf("sumeragi: no active round")
	}
	if round.Phase() == PhaseCommitted && round.Height() == block.Header.Height {
		return nil // already processed via tallySignature
	}

	topo := round.Topology()
	if err := block.VerifyQuorum(topo.BlockSignatureQuorum()); err != nil {
		return fmt.Errorf("sumeragi: block_committed failed quorum check: %w", err)
	}
	if err := e.chain.Append(block, topo.BlockSignatureQuorum()); err != nil {
		return fmt.Errorf("sumeragi: append committed block: %w", err)
	}
	e.finishRound(round, block)
	return nil
}

// finishRound applies the side effects common to every path that reaches a
// commit: mark the round committed, hand the block to the pipeline, and
// start the next round under the reshuffled topology.
func (e *Engine) finishRound(round *RoundState, block *core.CommittedBlock) {
	round.Commit()
	e.clock.DisarmAll()
	e.mempool.Remove(txIDs(block.Transactions))

	e.mu.Lock()
	e.viewChangeStreak = 0
	e.mu.Unlock()

	if e.emitter != nil {
		e.emitter.Emit(events.Event{Type: events.EventCommitted, BlockHeight: block.Header.Height, BlockHash: block.Hash()})
	}
	if e.onCommit != nil {
		e.onCommit(block)
	}

	topo := round.Topology()
	next := topo.Reshuffle(topo.RawPeerSet(), []byte(block.Hash()))
	e.StartRound(block.Header.Height+1, next)
}

// onTimeout converts an expired timer into a ViewChangeSuggested vote: it
// records its own vote and broadcasts it to the other voting peers.
func (e *Engine) onTimeout(t Timeout) {
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil {
		return
	}
	topo := round.Topology()
	view := topo.ViewChangeCount()
	corrID := uuid.NewString()
	e.log.WithFields(logrus.Fields{"timeout": t, "height": round.Height(), "view": view, "corr_id": corrID}).Warn("round timer fired")

	e.recordViewChangeVote(view, e.cfg.Self.PublicKey.Hex())
	e.maybeRotate(round, view, string(t))

	msg := Message{
		Kind:   KindViewChangeSuggested,
		From:   e.cfg.Self,
		Height: round.Height(),
		ViewChangeSuggested: &ViewChangeSuggested{
			Reason:          string(t),
			ViewChangeCount: view,
		},
	}
	if err := e.transport.Broadcast(otherVotingPeers(topo, e.cfg.Self), msg); err != nil {
		e.log.WithFields(logrus.Fields{"corr_id": corrID}).WithError(err).Error("broadcast view_change_suggested failed")
	}
}

func (e *Engine) onViewChangeSuggested(msg Message) error {
	if msg.ViewChangeSuggested == nil {
		return fmt.Errorf("sumeragi: empty view_change_suggested from %s", msg.From)
	}
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	if round == nil || round.Height() != msg.Height {
		return nil // stale vote for a round we've already moved past
	}
	view := msg.ViewChangeSuggested.ViewChangeCount
	e.recordViewChangeVote(view, msg.From.PublicKey.Hex())
	e.maybeRotate(round, view, msg.ViewChangeSuggested.Reason)
	return nil
}

func (e *Engine) recordViewChangeVote(view uint32, voterHex string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.viewChangeVotes[view] == nil {
		e.viewChangeVotes[view] = make(map[string]bool)
	}
	e.viewChangeVotes[view][voterHex] = true
}

// maybeRotate checks whether view now has ViewChangeQuorum votes and, if so,
// rotates the topology and restarts the round (§4.4). Idempotent: a round
// already past view does nothing.
func (e *Engine) maybeRotate(round *RoundState, view uint32, reason string) {
	topo := round.Topology()
	if view < topo.ViewChangeCount() {
		return
	}
	e.mu.Lock()
	votes := len(e.viewChangeVotes[view])
	e.mu.Unlock()
	if votes < topo.ViewChangeQuorum() {
		return
	}

	e.mu.Lock()
	e.viewChangeStreak++
	streak := e.viewChangeStreak
	e.mu.Unlock()

	var next topology.Topology
	if e.cfg.MaxViewChangesBeforeReshuffle > 0 && streak > e.cfg.MaxViewChangesBeforeReshuffle {
		next = topo.ForceReshuffle()
		e.mu.Lock()
		e.viewChangeStreak = 0
		e.mu.Unlock()
	} else {
		next = topo.RotateViewChange()
	}
	invalidatedHash := round.ViewChange(next)
	if invalidatedHash != "" {
		if err := e.chain.RecordInvalidated(invalidatedHash); err != nil {
			e.log.WithError(err).Error("record invalidated block failed")
		}
	}
	if e.emitter != nil {
		e.emitter.Emit(events.Event{Type: events.EventViewChanged, BlockHeight: round.Height(), Data: map[string]any{
			"view_change_count": next.ViewChangeCount(),
			"reason":            reason,
		}})
	}
	e.StartRound(round.Height(), next)
}

func otherVotingPeers(topo topology.Topology, self peer.ID) []peer.ID {
	var out []peer.ID
	for _, p := range topo.VotingPeers() {
		if !p.Equal(self) {
			out = append(out, p)
		}
	}
	return out
}

func otherVotingAndObservingPeers(all []peer.ID, self peer.ID) []peer.ID {
	var out []peer.ID
	for _, p := range all {
		if !p.Equal(self) {
			out = append(out, p)
		}
	}
	return out
}

func txIDs(txs []*core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
