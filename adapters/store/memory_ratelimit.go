package store

import (
	"context"
	"sync"
	"time"
)

type rateWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryRateCounter is an in-memory fixed window implementation of ports.RateCounter
type MemoryRateCounter struct {
	windows map[string]rateWindow
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryRateCounter creates a new in-memory rate counter
func NewMemoryRateCounter(opts ...Option) *MemoryRateCounter {
	o := buildOptions(opts)
	return &MemoryRateCounter{
		windows: make(map[string]rateWindow),
		now:     o.now,
	}
}

// Increment bumps the counter for key in its current window
func (c *MemoryRateCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = rateWindow{expiresAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w

	return w.count, w.expiresAt, nil
}

// Sweep drops elapsed windows and returns how many were removed
func (c *MemoryRateCounter) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, w := range c.windows {
		if now.After(w.expiresAt) {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows
func (c *MemoryRateCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Purge resets every counter
func (c *MemoryRateCounter) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = make(map[string]rateWindow)
}
