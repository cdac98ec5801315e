package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in memory. Used in tests and for runs where
// durability is explicitly not wanted.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	saves int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Save stores a copy of the snapshot.
func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.StepID] = snap
	s.saves++
	return nil
}

// Load returns the stored snapshot or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, stepID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[stepID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Delete removes the snapshot if present.
func (s *MemoryStore) Delete(_ context.Context, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, stepID)
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
