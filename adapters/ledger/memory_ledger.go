package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
)

// MemoryLedger records transfers in memory. It stands in for the external
// transaction builder and is the side effect idempotent writes protect.
type MemoryLedger struct {
	transfers map[string][]core.Transfer
	mu        sync.RWMutex
	now       func() time.Time
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transfers: make(map[string][]core.Transfer),
		now:       time.Now,
	}
}

// Submit assigns an id and timestamp and records the transfer
func (l *MemoryLedger) Submit(ctx context.Context, transfer core.Transfer) (core.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	transfer.ID = uuid.New().String()
	transfer.CreatedAt = l.now().UTC()
	l.transfers[transfer.Identity] = append(l.transfers[transfer.Identity], transfer)

	return transfer, nil
}

// List returns the transfers submitted by identity, oldest first
func (l *MemoryLedger) List(ctx context.Context, identity string) ([]core.Transfer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]core.Transfer(nil), l.transfers[identity]...), nil
}

// Count returns the total number of recorded transfers
func (l *MemoryLedger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, ts := range l.transfers {
		n += len(ts)
	}
	return n
}
