package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened to a block or transaction as it moves
// through the pending -> valid -> committed pipeline (§6 "Outbound event
// stream").
type EventType string

const (
	// EventCreated fires when the Leader forms a PendingBlock.
	EventCreated EventType = "created"
	// EventValidated fires when a block's transactions have been run
	// through stateful validation (accepted/rejected split decided).
	EventValidated EventType = "validated"
	// EventSigned fires each time a peer adds its signature to a block.
	EventSigned EventType = "signed"
	// EventCommitted fires once a block reaches signature quorum and is
	// appended to the chain.
	EventCommitted EventType = "committed"
	// EventRejected fires when an individual transaction is dropped
	// during validation (distinct from EventViewChanged, which concerns
	// whole rounds).
	EventRejected EventType = "rejected"
	// EventTransferred fires when a transfer instruction moves balance
	// between two accounts, carrying Data["from"], Data["to"] and
	// Data["amount"].
	EventTransferred EventType = "transferred"
	// EventViewChanged fires when the round's view_change_count advances,
	// whether from a timeout or an explicit ViewChangeSuggested quorum.
	EventViewChanged EventType = "view_changed"
)

// Event carries a typed payload emitted after a consensus state change.
type Event struct {
	Type        EventType      `json:"type"`
	BlockHeight int64          `json:"block_height"`
	BlockHash   string         `json:"block_hash,omitempty"`
	TxID        string         `json:"tx_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *logrus.Entry
}

// NewEmitter creates an Emitter with no subscribers. log may be nil, in
// which case a standalone logrus logger is used.
func NewEmitter(log *logrus.Entry) *Emitter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Emitter{handlers: make(map[EventType][]Handler), log: log}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithFields(logrus.Fields{
						"event": ev.Type,
						"panic": r,
					}).Error("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
