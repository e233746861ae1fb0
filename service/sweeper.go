package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/layer-3/remitgate/ports"
)

// DefaultSweepInterval is how often expired in-memory entries are evicted.
const DefaultSweepInterval = time.Minute

type sweepTarget struct {
	name  string
	store ports.Sweeper
}

// Sweeper periodically evicts expired entries from in-memory stores.
// Stores already ignore expired entries on read, so a missed cycle only
// costs memory.
type Sweeper struct {
	interval time.Duration
	targets  []sweepTarget
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper ticking every interval
func NewSweeper(interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{interval: interval, logger: logger, now: time.Now}
}

// Add registers a store to sweep. Call before Run.
func (s *Sweeper) Add(name string, store ports.Sweeper) {
	s.targets = append(s.targets, sweepTarget{name: name, store: store})
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs one eviction pass and returns the number of removed entries
func (s *Sweeper) SweepOnce() int {
	now := s.now()
	total := 0
	for _, t := range s.targets {
		removed := t.store.Sweep(now)
		if removed > 0 {
			s.logger.Debug("swept expired entries", "store", t.name, "removed", removed)
		}
		total += removed
	}
	return total
}
