package snapshot

import "sync"

// Store holds exactly one current Snapshot. Set swaps the whole value under
// a write lock shared with Get, so a reader can never observe a torn mix of
// fields from two different cycles. One writer (the scheduler) and any
// number of readers (HTTP handlers) are supported.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewStore creates a Store seeded with the given initial snapshot.
func NewStore(initial Snapshot) *Store {
	return &Store{current: initial}
}

// Get returns the latest completed snapshot. It never blocks on an in-flight
// scrape cycle.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the current snapshot atomically.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}
