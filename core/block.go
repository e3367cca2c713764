package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/sumeragi/crypto"
)

// BlockHeader contains the block metadata that is hashed and chained.
// Timestamp is informational only (see SPEC_FULL.md §E): no consensus
// decision may depend on it, only on local monotonic clocks.
type BlockHeader struct {
	Height          int64  `json:"height"`
	PreviousHash    string `json:"previous_block_hash"`
	TxRoot          string `json:"tx_root"`
	Timestamp       int64  `json:"timestamp"`
	ViewChangeCount uint32 `json:"view_change_count"`
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
// Each ID is length-prefixed (4-byte big-endian) to prevent boundary
// ambiguity where different ID sets could otherwise produce the same byte
// sequence.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, tx := range txs {
		id := []byte(tx.ID)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf.Write(lenBuf[:])
		buf.Write(id)
	}
	return crypto.Hash(buf.Bytes())
}

// PendingBlock is a freshly formed, unvalidated, unsigned block: the first
// stage of the pending → valid → committed progression (§3). It never
// moves sideways — promotion to ValidBlock is the only transition out of
// this type.
type PendingBlock struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// NewPendingBlock creates a PendingBlock at height with the given
// transactions. Timestamp is stamped at creation for informational
// purposes only.
func NewPendingBlock(height int64, previousHash string, viewChangeCount uint32, txs []*Transaction) *PendingBlock {
	return &PendingBlock{
		Header: BlockHeader{
			Height:          height,
			PreviousHash:    previousHash,
			TxRoot:          ComputeTxRoot(txs),
			Timestamp:       time.Now().UnixNano(),
			ViewChangeCount: viewChangeCount,
		},
		Transactions: txs,
	}
}

// Hash returns the 32-byte-equivalent hex hash of the block header. This is
// the value peers sign and the value the next block's PreviousHash must
// equal.
func (b *PendingBlock) Hash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		// Header contains only primitive fields; marshalling cannot fail.
		panic(fmt.Sprintf("core: marshal block header: %v", err))
	}
	return crypto.Hash(data)
}

// Validate promotes a PendingBlock to a ValidBlock by running every
// transaction through validateTx against a WSV snapshot. Transactions that
// fail validation are moved to RejectedTransactions (ValidationFailed is
// locally recovered, §7) rather than failing the whole block. The caller
// (the Leader forming the block, or a Validating Peer re-validating it)
// then signs the result with Sign.
func (b *PendingBlock) Validate(validateTx func(*Transaction) error) *ValidBlock {
	accepted := make([]*Transaction, 0, len(b.Transactions))
	var rejected []*Transaction
	for _, tx := range b.Transactions {
		if err := validateTx(tx); err != nil {
			rejected = append(rejected, tx)
			continue
		}
		accepted = append(accepted, tx)
	}
	header := b.Header
	header.TxRoot = ComputeTxRoot(accepted)
	return &ValidBlock{
		Header:               header,
		Transactions:         accepted,
		RejectedTransactions: rejected,
		Signatures:           NewSignatureSet(),
	}
}
