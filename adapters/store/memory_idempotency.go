package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/remitgate/core"
)

// MemoryIdempotencyStore is an in-memory implementation of ports.IdempotencyStore
type MemoryIdempotencyStore struct {
	records map[string]core.IdempotencyRecord
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates a new in-memory idempotency store
func NewMemoryIdempotencyStore(opts ...Option) *MemoryIdempotencyStore {
	o := buildOptions(opts)
	return &MemoryIdempotencyStore{
		records: make(map[string]core.IdempotencyRecord),
		now:     o.now,
	}
}

// Reserve inserts a pending record for key unless a live one exists
func (s *MemoryIdempotencyStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (core.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[key]; ok && !existing.Expired(now) {
		return existing, false, nil
	}

	record := core.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      core.IdempotencyPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	s.records[key] = record
	return record, true, nil
}

// Complete replaces the pending record with the finished one
func (s *MemoryIdempotencyStore) Complete(ctx context.Context, record core.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Status = core.IdempotencyCompleted
	s.records[record.Key] = record
	return nil
}

// Release removes a pending reservation. Completed records are kept.
func (s *MemoryIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[key]; ok && existing.Status == core.IdempotencyPending {
		delete(s.records, key)
	}
	return nil
}

// Sweep drops expired records and returns how many were removed
func (s *MemoryIdempotencyStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored records
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Purge removes every record
func (s *MemoryIdempotencyStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]core.IdempotencyRecord)
}
