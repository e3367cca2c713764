package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/sumeragi/crypto"
)

// TxType identifies the kind of instruction a transaction carries. The
// consensus core is agnostic to instruction semantics beyond what WSV.Apply
// does with them — the smart-contract execution engine itself is out of
// scope (spec.md §1).
type TxType string

// TxTransfer is the one concrete instruction kept from the teacher's wider
// instruction set, sufficient to exercise WorldStateView.Apply end to end.
// The teacher's asset/template/session/market instructions are dropped —
// see DESIGN.md.
const TxTransfer TxType = "transfer"

// Transaction is the atomic unit of work submitted by a client (§6 "Inbound
// from client gateway"). From holds the sender's full hex-encoded public
// key. Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	body := signingBody{
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key. This is
// the consensus core's own re-verification (§6: "the consensus core
// re-verifies before building a block") — it does not trust the gateway's
// prior check.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current
// timestamp.
func NewTransaction(typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// TransferPayload moves native ledger balance from the signer to To.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}
