package store

import (
	"context"
	"sync"
	"time"
)

// MemoryTokenStore is an in-memory implementation of ports.TokenStore
type MemoryTokenStore struct {
	invalidated map[string]time.Time
	mu          sync.RWMutex
	now         func() time.Time
}

// NewMemoryTokenStore creates a new in-memory token store
func NewMemoryTokenStore(opts ...Option) *MemoryTokenStore {
	o := buildOptions(opts)
	return &MemoryTokenStore{
		invalidated: make(map[string]time.Time),
		now:         o.now,
	}
}

// InvalidateToken marks tokenID as invalidated for expiry. A later call
// never shortens an existing entry.
func (s *MemoryTokenStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := s.now().Add(expiry)
	if current, ok := s.invalidated[tokenID]; !ok || until.After(current) {
		s.invalidated[tokenID] = until
	}
	return nil
}

// IsTokenInvalidated reports whether tokenID has a live invalidation entry
func (s *MemoryTokenStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.invalidated[tokenID]
	if !ok {
		return false, nil
	}
	return s.now().Before(until), nil
}

// Sweep drops entries whose tokens can no longer be presented
func (s *MemoryTokenStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, until := range s.invalidated {
		if !now.Before(until) {
			delete(s.invalidated, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of invalidation entries
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.invalidated)
}

// Purge forgets every invalidation. Logged-out sessions become usable
// again until they expire.
func (s *MemoryTokenStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = make(map[string]time.Time)
}
