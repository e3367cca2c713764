package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/events"
)

// Context is passed to every Handler and provides access to the world state,
// the committing block, the triggering transaction, and the event emitter.
type Context struct {
	State   core.WorldStateView
	Block   *core.CommittedBlock
	Tx      *core.Transaction
	Emitter *events.Emitter
}

// Executor applies a committed block's transactions to a WorldStateView
// using the global Handler registry. It is the mechanism core.WorldStateView
// implementations delegate to from Apply, keeping instruction dispatch
// pluggable instead of hardcoded per-type.
type Executor struct {
	state   core.WorldStateView
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
// emitter may be nil.
func NewExecutor(state core.WorldStateView, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially, each under
// its own snapshot, then commits. A failing transaction aborts the whole
// block — by the time a block reaches here it has already passed stateful
// validation, so a failure indicates the validator and this executor
// disagree.
func (e *Executor) ExecuteBlock(block *core.CommittedBlock) error {
	blockSnap, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			_ = e.state.RevertToSnapshot(blockSnap)
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventCommitted,
			BlockHeight: block.Header.Height,
			BlockHash:   block.Hash(),
		})
	}
	return e.state.Commit()
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.CommittedBlock, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.applyTx(block, tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	return nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the
// registered handler for the instruction's type.
func (e *Executor) applyTx(block *core.CommittedBlock, tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: e.emitter,
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
