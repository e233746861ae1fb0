package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
)

// DefaultAuditCapacity is the number of events kept when none is configured.
const DefaultAuditCapacity = 500

// AuditLog keeps the most recent audit events in a fixed-size ring buffer.
// It implements ports.AuditSink.
type AuditLog struct {
	mu     sync.RWMutex
	events []core.AuditEvent
	next   int
	full   bool
}

// NewAuditLog creates a ring buffer holding up to capacity events
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{events: make([]core.AuditEvent, capacity)}
}

// Record appends an event, evicting the oldest once the buffer is full
func (l *AuditLog) Record(_ context.Context, event core.AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (l *AuditLog) Recent(limit int) []core.AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.sizeLocked()
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]core.AuditEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.events)) % len(l.events)
		out = append(out, l.events[idx])
	}
	return out
}

// Len returns the number of buffered events
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sizeLocked()
}

// Purge drops every buffered event
func (l *AuditLog) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = make([]core.AuditEvent, len(l.events))
	l.next = 0
	l.full = false
}

func (l *AuditLog) sizeLocked() int {
	if l.full {
		return len(l.events)
	}
	return l.next
}

// NopAuditSink discards all events. Use when no audit backend is configured.
type NopAuditSink struct{}

// Record discards the event.
func (NopAuditSink) Record(context.Context, core.AuditEvent) {}

func newAuditEvent(kind core.AuditType, actor, message string, metadata map[string]string, now time.Time) core.AuditEvent {
	return core.AuditEvent{
		ID:        uuid.New().String(),
		Type:      kind,
		Actor:     actor,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}
}
