// leveldb.go - LevelDB-backed KV for persistent deployments.

package store

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelDB wraps a goleveldb database behind the KV contract. LevelDB has no
// native compare-and-set, so PutIfAbsent serializes writers on a mutex; the
// engine is single-writer per call anyway, the lock only defends the
// contract against misuse.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// PutIfAbsent implements KV.
func (s *LevelDB) PutIfAbsent(key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Get implements KV.
func (s *LevelDB) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == errors.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Has implements KV.
func (s *LevelDB) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

// Close implements KV.
func (s *LevelDB) Close() error { return s.db.Close() }
