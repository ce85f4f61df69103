// store.go - Key-value storage with atomic create-if-absent semantics.
//
// The engine's double-spend guard relies on a single storage primitive:
// PutIfAbsent, which either claims a key forever or reports it taken. The
// guard never reads a flag and branches on it, so there is no window in
// which two writers can both believe they created the record.

package store

import "sync"

// KV is the storage contract the engine depends on. Implementations must
// make PutIfAbsent atomic: of any set of concurrent calls for the same key,
// exactly one observes created == true.
type KV interface {
	// PutIfAbsent stores value under key only if the key does not exist.
	// Returns whether this call created the entry.
	PutIfAbsent(key, value []byte) (created bool, err error)
	// Get returns the value for key and whether it exists.
	Get(key []byte) (value []byte, ok bool, err error)
	// Has reports whether key exists.
	Has(key []byte) (bool, error)
	// Close releases underlying resources.
	Close() error
}

// Memory is an in-process KV used by tests and single-process deployments.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// PutIfAbsent implements KV.
func (s *Memory) PutIfAbsent(key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[string(key)]; ok {
		return false, nil
	}
	s.m[string(key)] = append([]byte(nil), value...)
	return true, nil
}

// Get implements KV.
func (s *Memory) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Has implements KV.
func (s *Memory) Has(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[string(key)]
	return ok, nil
}

// Close implements KV.
func (s *Memory) Close() error { return nil }

// Len returns the number of stored keys.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
