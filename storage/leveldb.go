package storage

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tolelom/sumeragi/core"
)

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// leveldbBatch implements Batch on top of leveldb.Batch.
type leveldbBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (l *LevelDB) NewBatch() Batch {
	return &leveldbBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (b *leveldbBatch) Set(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *leveldbBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (b *leveldbBatch) Write() error {
	return b.db.Write(b.batch, nil)
}

func (b *leveldbBatch) Reset() {
	b.batch.Reset()
}

// ---- BlockStore implementation ----

// LevelBlockStore implements core.BlockStore on top of LevelDB. Committed
// blocks are keyed by hash, with a parallel height index and tip pointer;
// the InvalidatedBlocks log is a simple JSON-encoded slice under a fixed
// key since it is append-only and small relative to the chain itself.
type LevelBlockStore struct {
	db *LevelDB
}

// NewLevelBlockStore wraps a LevelDB instance as a BlockStore.
func NewLevelBlockStore(db *LevelDB) *LevelBlockStore {
	return &LevelBlockStore{db: db}
}

func (s *LevelBlockStore) GetBlock(hash string) (*core.CommittedBlock, error) {
	data, err := s.db.Get([]byte("block:" + hash))
	if err != nil {
		return nil, err
	}
	var b core.CommittedBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *LevelBlockStore) GetBlockByHeight(height int64) (*core.CommittedBlock, error) {
	key := fmt.Sprintf("height:%d", height)
	hash, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *LevelBlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte("chain:tip"))
	if err == core.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// CommitBlock atomically writes the block body, its height index entry, and
// the new tip pointer in a single batch.
func (s *LevelBlockStore) CommitBlock(block *core.CommittedBlock) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	hash := block.Hash()

	batch := s.db.NewBatch()
	batch.Set([]byte("block:"+hash), data)
	batch.Set([]byte(fmt.Sprintf("height:%d", block.Header.Height)), []byte(hash))
	batch.Set([]byte("chain:tip"), []byte(hash))
	return batch.Write()
}

func (s *LevelBlockStore) AppendInvalidated(hash string) error {
	hashes, err := s.InvalidatedBlocks()
	if err != nil {
		return err
	}
	hashes = append(hashes, hash)
	data, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	return s.db.Set([]byte("chain:invalidated"), data)
}

func (s *LevelBlockStore) InvalidatedBlocks() ([]string, error) {
	data, err := s.db.Get([]byte("chain:invalidated"))
	if err == core.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}
