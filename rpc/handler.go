package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/indexer"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	chain   *core.Chain
	mempool *core.Mempool
	wsv     core.WorldStateView
	indexer *indexer.Indexer
}

// NewHandler creates an RPC Handler.
func NewHandler(chain *core.Chain, mempool *core.Mempool, wsv core.WorldStateView, idx *indexer.Indexer) *Handler {
	return &Handler{chain: chain, mempool: mempool, wsv: wsv, indexer: idx}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.chain.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getTransactionsByAccount":
		return h.getTransactionsByAccount(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.CommittedBlock
	var err error
	switch {
	case params.Hash != "":
		block, err = h.chain.GetBlock(params.Hash)
	case params.Height != nil:
		block, err = h.chain.GetBlockByHeight(*params.Height)
	default:
		block = h.chain.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.wsv.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getTransactionsByAccount(req Request) Response {
	var params struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Account == "" {
		return errResponse(req.ID, CodeInvalidParams, "account is required")
	}
	ids, err := h.indexer.GetTransactionsByAccount(params.Account)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

// sendTx is the consensus core's client gateway entry point (§6 "Inbound
// from client gateway"): it only queues the transaction in the mempool for
// the pipeline orchestrator to dequeue into the engine. Acceptance here
// means "queued", not "committed".
func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
