package sumeragi

import (
	"sync"

	"github.com/tolelom/sumeragi/peer"
)

// FaultPredicate decides whether a message should be faulted, given its
// intended recipient.
type FaultPredicate func(target peer.ID, msg Message) bool

// FaultyTransport wraps a real Transport by composition, letting tests
// inject network faults (drops and selective partitions, chosen by a
// FaultPredicate; messages are never reordered or delayed) without
// the Engine itself knowing it is being tested. This is the harness design
// referenced in §9: fault injection is layered on top of a real Transport
// and a real Engine, never a parallel mock implementation of the protocol.
type FaultyTransport struct {
	mu       sync.Mutex
	inner    Transport
	drop     FaultPredicate
	recorded []sentMessage
}

type sentMessage struct {
	Target peer.ID
	Msg    Message
	Sent   bool
}

// NewFaultyTransport wraps inner. drop is consulted before every send; a nil
// drop lets everything through (a no-op wrapper, useful as a recording-only
// spy).
func NewFaultyTransport(inner Transport, drop FaultPredicate) *FaultyTransport {
	return &FaultyTransport{inner: inner, drop: drop}
}

// SetFault replaces the drop predicate, e.g. to simulate a Leader going
// silent partway through a test.
func (f *FaultyTransport) SetFault(drop FaultPredicate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drop = drop
}

// Sent returns every message this transport was asked to send, in order,
// including ones that were faulted away — tests assert on Sent to check both
// "a message was attempted" and "it was correctly dropped".
func (f *FaultyTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.recorded))
	copy(out, f.recorded)
	return out
}

func (f *FaultyTransport) SendTo(target peer.ID, msg Message) error {
	f.mu.Lock()
	drop := f.drop
	f.mu.Unlock()
	faulted := drop != nil && drop(target, msg)
	f.record(target, msg, !faulted)
	if faulted {
		return nil
	}
	return f.inner.SendTo(target, msg)
}

func (f *FaultyTransport) Broadcast(targets []peer.ID, msg Message) error {
	var toSend []peer.ID
	f.mu.Lock()
	drop := f.drop
	f.mu.Unlock()
	for _, t := range targets {
		faulted := drop != nil && drop(t, msg)
		f.record(t, msg, !faulted)
		if !faulted {
			toSend = append(toSend, t)
		}
	}
	if len(toSend) == 0 {
		return nil
	}
	return f.inner.Broadcast(toSend, msg)
}

func (f *FaultyTransport) record(target peer.ID, msg Message, sent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, sentMessage{Target: target, Msg: msg, Sent: sent})
}

// DropAll always faults every message — simulates a partitioned or crashed
// peer.
func DropAll(peer.ID, Message) bool { return true }

// DropKind faults only messages of the given kind, e.g. to simulate a Leader
// that forms blocks but never broadcasts them (DropKind(KindBlockCreated)).
func DropKind(kind MessageKind) FaultPredicate {
	return func(_ peer.ID, msg Message) bool { return msg.Kind == kind }
}

// DropTo faults every message addressed to target — simulates one peer's
// inbound link being cut while everything else still flows.
func DropTo(target peer.ID) FaultPredicate {
	return func(t peer.ID, _ Message) bool { return t.Equal(target) }
}
