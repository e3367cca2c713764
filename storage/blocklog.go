package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tolelom/sumeragi/core"
)

const prefixAuditLog = "audit:"

// AuditLog implements pipeline.BlockLog on its own DB, independent of the
// chain's own block store — the second of the two sinks every committed
// block fans out to (§4.6). Keeping it on a separate DB means a corrupted
// or lagging chain store never takes the audit trail down with it.
type AuditLog struct {
	db DB
}

// NewAuditLog wraps db as an AuditLog.
func NewAuditLog(db DB) *AuditLog {
	return &AuditLog{db: db}
}

// Append writes block under its own key, keyed by height so the log can be
// walked in order; re-appending the same height overwrites idempotently.
func (a *AuditLog) Append(block *core.CommittedBlock) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("audit log marshal: %w", err)
	}
	return a.db.Set(auditKey(block.Header.Height), data)
}

// Get returns the logged block at height, if any.
func (a *AuditLog) Get(height int64) (*core.CommittedBlock, error) {
	data, err := a.db.Get(auditKey(height))
	if err != nil {
		return nil, err
	}
	var block core.CommittedBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("audit log unmarshal: %w", err)
	}
	return &block, nil
}

func auditKey(height int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(height))
	return append([]byte(prefixAuditLog), buf[:]...)
}
