package storage

import (
	"sync"
)

// MemoryStore is a simple in-memory implementation (Note: data lost on restart, for testing/temp tasks only)
type MemoryStore struct {
	checkpoint Checkpoint
	dedup      DedupLog
	mu         sync.RWMutex
}

// NewMemoryStore initializes a new in-memory storage.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dedup: make(DedupLog),
	}
}

func (m *MemoryStore) LoadCheckpoint() (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.checkpoint == nil {
		return nil, ErrNotFound
	}
	return m.checkpoint.clone(), nil
}

func (m *MemoryStore) SaveCheckpoint(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = cp.clone()
	return nil
}

func (m *MemoryStore) AppendDedup(kind string, entry DedupEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedup[kind] = append(m.dedup[kind], entry)
	return nil
}

func (m *MemoryStore) LoadDedup() (DedupLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dedup.clone(), nil
}

// Close implements the Persistence interface.
func (m *MemoryStore) Close() error {
	return nil
}
