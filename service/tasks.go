package service

import (
	"context"
	"log/slog"
	"sync"
)

// TaskGroup tracks in-flight background work so shutdown can drain it.
// After Close, Go refuses new work.
type TaskGroup struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	logger *slog.Logger
}

// NewTaskGroup creates an open task group
func NewTaskGroup(logger *slog.Logger) *TaskGroup {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskGroup{logger: logger}
}

// Go runs fn in a new goroutine and reports whether it was accepted
func (g *TaskGroup) Go(name string, fn func()) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Warn("task rejected during shutdown", "task", name)
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("background task panicked", "task", name, "panic", rec)
			}
		}()
		fn()
	}()
	return true
}

// Close stops accepting new work
func (g *TaskGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Wait blocks until running tasks finish or ctx is done. Call Close first.
func (g *TaskGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
