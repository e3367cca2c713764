// Package transfer registers the sole instruction handler the consensus
// core's executor exercises: moving native ledger balance between accounts.
package transfer

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	if p.To == "" {
		return fmt.Errorf("transfer to address required")
	}
	if p.To == ctx.Tx.From {
		return fmt.Errorf("transfer to self is not allowed")
	}

	sender, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return err
	}
	if sender.Balance < p.Amount {
		return fmt.Errorf("insufficient balance: have %d, need %d", sender.Balance, p.Amount)
	}
	sender.Balance -= p.Amount
	if err := ctx.State.SetAccount(sender); err != nil {
		return err
	}

	recipient, err := ctx.State.GetAccount(p.To)
	if err != nil {
		return err
	}
	recipient.Balance += p.Amount
	if err := ctx.State.SetAccount(recipient); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTransferred,
			BlockHeight: ctx.Block.Header.Height,
			BlockHash:   ctx.Block.Hash(),
			TxID:        ctx.Tx.ID,
			Data: map[string]any{
				"from":   ctx.Tx.From,
				"to":     p.To,
				"amount": p.Amount,
			},
		})
	}
	return nil
}
