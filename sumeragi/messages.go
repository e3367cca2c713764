// Package sumeragi implements the BFT consensus round: topology-driven
// leader election, the pending -> valid -> committed block progression, and
// the view-change protocol that recovers from a faulty or unresponsive
// Leader or Proxy Tail.
package sumeragi

import (
	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/peer"
)

// MessageKind identifies which of the seven wire messages a Message carries.
type MessageKind string

const (
	KindTransactionForwarded         MessageKind = "transaction_forwarded"
	KindTransactionReceived          MessageKind = "transaction_received"
	KindBlockCreated                 MessageKind = "block_created"
	KindBlockSigned                  MessageKind = "block_signed"
	KindBlockCommitted               MessageKind = "block_committed"
	KindViewChangeSuggested          MessageKind = "view_change_suggested"
	KindNoTransactionReceiptReceived MessageKind = "no_transaction_receipt_received"
)

// Message is the envelope every Sumeragi wire message travels in. Exactly
// one of the typed payload fields is set, matching Kind.
type Message struct {
	Kind   MessageKind `json:"kind"`
	From   peer.ID     `json:"from"`
	Height int64       `json:"height"`

	TransactionForwarded         *TransactionForwarded         `json:"transaction_forwarded,omitempty"`
	TransactionReceived          *TransactionReceived          `json:"transaction_received,omitempty"`
	BlockCreated                 *BlockCreated                 `json:"block_created,omitempty"`
	BlockSigned                  *BlockSigned                  `json:"block_signed,omitempty"`
	BlockCommitted               *BlockCommitted               `json:"block_committed,omitempty"`
	ViewChangeSuggested          *ViewChangeSuggested          `json:"view_change_suggested,omitempty"`
	NoTransactionReceiptReceived *NoTransactionReceiptReceived `json:"no_transaction_receipt_received,omitempty"`
}

// TransactionForwarded carries a client transaction from an Observing Peer
// or Validating Peer toward the current Leader.
type TransactionForwarded struct {
	Transaction *core.Transaction `json:"transaction"`
}

// TransactionReceived is the Leader's acknowledgement that a forwarded
// transaction entered its queue, quieting the sender's
// NoTransactionReceiptReceived timer.
type TransactionReceived struct {
	TransactionID string `json:"transaction_id"`
}

// BlockCreated carries the Leader's freshly formed, validated block to every
// Validating Peer and the Proxy Tail for signing.
type BlockCreated struct {
	Block *core.ValidBlock `json:"block"`
}

// BlockSigned carries one peer's signature over a block back toward the
// Proxy Tail, which accumulates the quorum.
type BlockSigned struct {
	BlockHash string `json:"block_hash"`
	Signer    string `json:"signer"` // hex pubkey
	Signature string `json:"signature"`
}

// BlockCommitted is the Proxy Tail's broadcast of a block that reached
// signature quorum, to every peer (voting and observing).
type BlockCommitted struct {
	Block *core.CommittedBlock `json:"block"`
}

// ViewChangeSuggested is one peer's vote that the round has stalled and the
// topology should rotate. Reason records which timeout fired.
type ViewChangeSuggested struct {
	Reason          string `json:"reason"`
	ViewChangeCount uint32 `json:"view_change_count"`
}

// NoTransactionReceiptReceived is the wire shape for this message kind. The
// Engine never constructs it and HandleMessage rejects it: an expired
// receipt timer (TimeoutNoTransactionReceipt) goes straight to a
// ViewChangeSuggested vote instead.
type NoTransactionReceiptReceived struct {
	TransactionID string `json:"transaction_id"`
}
