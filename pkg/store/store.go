// Package store persists which meetings have already been processed, so
// batch runs can resume after interruption without redoing completed work.
package store

import (
	"context"
	"sync"
)

// Store loads and saves the set of completed meeting IDs. Save persists
// exactly the given set; IDs absent from it are forgotten.
type Store interface {
	Load(ctx context.Context) (map[string]bool, error)
	Save(ctx context.Context, done map[string]bool) error
	Close() error
}

// MemoryStore keeps the completed set in memory. Useful for tests and for
// one-shot runs that do not need resume.
type MemoryStore struct {
	mu   sync.Mutex
	done map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{done: make(map[string]bool)}
}

// Load returns a copy of the completed set.
func (m *MemoryStore) Load(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.done))
	for id := range m.done {
		out[id] = true
	}
	return out, nil
}

// Save replaces the completed set with a copy of done.
func (m *MemoryStore) Save(ctx context.Context, done map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = make(map[string]bool, len(done))
	for id, ok := range done {
		if ok {
			m.done[id] = true
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
