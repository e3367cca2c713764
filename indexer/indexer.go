// Package indexer maintains a secondary index over committed transfers so
// clients can look up an account's transaction history without scanning
// every block in the chain.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/storage"
)

const prefixAccountTxs = "idx:account:tx:"

// Indexer subscribes to the transfer event stream and updates per-account
// transaction-ID lists.
type Indexer struct {
	db  storage.DB
	log *logrus.Entry
}

// New creates an Indexer backed by db and subscribes it to emitter.
func New(db storage.DB, emitter *events.Emitter, log *logrus.Entry) *Indexer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	idx := &Indexer{db: db, log: log}
	emitter.Subscribe(events.EventTransferred, idx.onTransferred)
	return idx
}

// GetTransactionsByAccount returns the IDs of every transfer that credited
// or debited account, most recent index write last.
func (idx *Indexer) GetTransactionsByAccount(account string) ([]string, error) {
	return idx.getList(prefixAccountTxs + account)
}

func (idx *Indexer) onTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	if ev.TxID == "" || from == "" || to == "" {
		return
	}
	if err := idx.addToList(prefixAccountTxs+from, ev.TxID); err != nil {
		idx.log.WithField("account", from).WithError(err).Error("index write failed")
	}
	if to != from {
		if err := idx.addToList(prefixAccountTxs+to, ev.TxID); err != nil {
			idx.log.WithField("account", to).WithError(err).Error("index write failed")
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
