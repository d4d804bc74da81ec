package storage

import (
	"errors"
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. Used by tests; not for
// production node operation.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errors.New("key not found")
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	p := string(prefix)
	type kv struct {
		k string
		v []byte
	}
	var snap []kv
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			snap = append(snap, kv{k, v})
		}
	}
	m.mu.RUnlock()
	for _, e := range snap {
		if err := fn([]byte(e.k), e.v); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// NewBatch opens an atomic write batch. Writes are staged in the batch and
// applied to the map under the write lock on Commit, so a reader never
// observes a partially applied batch.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m, ops: make(map[string][]byte)}
}

type memoryBatch struct {
	db      *MemoryDB
	ops     map[string][]byte // staged puts
	deleted map[string]bool   // staged deletes
}

func (mb *memoryBatch) Put(key, value []byte) error {
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	mb.ops[string(k)] = v
	if mb.deleted != nil {
		delete(mb.deleted, string(k))
	}
	return nil
}

func (mb *memoryBatch) Delete(key []byte) error {
	k := string(key)
	delete(mb.ops, k)
	if mb.deleted == nil {
		mb.deleted = make(map[string]bool)
	}
	mb.deleted[k] = true
	return nil
}

func (mb *memoryBatch) Commit() error {
	mb.db.mu.Lock()
	defer mb.db.mu.Unlock()
	for k := range mb.deleted {
		delete(mb.db.data, k)
	}
	for k, v := range mb.ops {
		mb.db.data[k] = v
	}
	return nil
}

// NewSnapshot copies the current key space into an isolated read-only view.
func (m *MemoryDB) NewSnapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		data[k] = cp
	}
	return &memorySnapshot{data: data}, nil
}

type memorySnapshot struct {
	data map[string][]byte
}

func (ms *memorySnapshot) Get(key []byte) ([]byte, error) {
	v, ok := ms.data[string(key)]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

func (ms *memorySnapshot) Has(key []byte) (bool, error) {
	_, ok := ms.data[string(key)]
	return ok, nil
}

func (ms *memorySnapshot) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	for k, v := range ms.data {
		if strings.HasPrefix(k, p) {
			if err := fn([]byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ms *memorySnapshot) Close() error {
	return nil
}
