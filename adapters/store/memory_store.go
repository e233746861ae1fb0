package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/remitgate/core"
)

// MemoryNonceStore is an in-memory implementation of ports.NonceStore
type MemoryNonceStore struct {
	nonces map[string]core.Nonce
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(opts ...Option) *MemoryNonceStore {
	o := buildOptions(opts)
	return &MemoryNonceStore{
		nonces: make(map[string]core.Nonce),
		now:    o.now,
	}
}

// Put stores the nonce, overwriting any previous nonce for the identity
func (s *MemoryNonceStore) Put(ctx context.Context, nonce core.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[nonce.Identity] = nonce
	return nil
}

// Consume removes and returns the nonce for identity
func (s *MemoryNonceStore) Consume(ctx context.Context, identity string) (core.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, exists := s.nonces[identity]
	if !exists {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	delete(s.nonces, identity)

	// Expired entries count as absent even when the sweeper has not run
	if nonce.Expired(s.now()) {
		return core.Nonce{}, core.ErrNonceNotFound
	}

	return nonce, nil
}

// Sweep drops expired nonces and returns how many were removed
func (s *MemoryNonceStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identity, nonce := range s.nonces {
		if nonce.Expired(now) {
			delete(s.nonces, identity)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored nonces, expired or not
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

// Purge removes every nonce
func (s *MemoryNonceStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces = make(map[string]core.Nonce)
}
