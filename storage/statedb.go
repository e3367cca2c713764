package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/vm"
)

// prefixAccount namespaces account entries in the underlying DB.
const prefixAccount = "acct:"

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.WorldStateView on top of a DB with an in-memory
// write buffer, snapshot/rollback, and deterministic state-root
// computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
	emitter   *events.Emitter
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// SetEmitter wires an event emitter that Apply's executor will report
// commit events through. Optional — a StateDB with no emitter still applies
// blocks, it just emits nothing.
func (s *StateDB) SetEmitter(e *events.Emitter) {
	s.emitter = e
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.set(prefixAccount+acc.Address, data)
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved
// snapshot. The snapshot maps are deep-copied so that subsequent writes
// cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state. It
// merges every persisted account entry with the current write buffer, then
// hashes the sorted key-value pairs using length-prefix encoding. It does
// NOT flush or modify state, so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(prefixAccount))
	for it.Next() {
		k := string(it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		merged[k] = v
	}
	it.Release()

	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// WriteBatch and then clears it. Call ComputeRoot() before signing the
// block, then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}

// Apply deterministically executes every transaction in block against the
// view and commits the result (core.WorldStateView.Apply; §6 "Outbound to
// WSV"). Dispatch per instruction type goes through vm.Executor and its
// pluggable Handler registry rather than this type hardcoding instruction
// semantics, so new instruction kinds need only register a vm.Handler. A
// transaction that fails mid-block indicates the block's validator and this
// executor disagree — by the time a block reaches Apply it has already
// passed stateful validation. Apply returns the error; pipeline.Orchestrator
// logs it and goes on with the next height.
func (s *StateDB) Apply(block *core.CommittedBlock) error {
	exec := vm.NewExecutor(s, s.emitter)
	return exec.ExecuteBlock(block)
}
