package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

// RateLimits are the per-window request ceilings for each category
type RateLimits struct {
	Window  time.Duration
	Auth    int
	Write   int
	General int
}

// DefaultRateLimits returns the stock ceilings: 10 auth, 30 write and
// 120 general requests per minute.
func DefaultRateLimits() RateLimits {
	return RateLimits{Window: time.Minute, Auth: 10, Write: 30, General: 120}
}

// failClosedDelay is the Retry-After given when the counter is unavailable
const failClosedDelay = time.Second

// RateLimiter admits or rejects requests per client and category
type RateLimiter struct {
	counter ports.RateCounter
	limits  RateLimits
	audit   ports.AuditSink
	logger  *slog.Logger
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Non-positive limits take defaults.
func NewRateLimiter(counter ports.RateCounter, limits RateLimits, audit ports.AuditSink, logger *slog.Logger) *RateLimiter {
	def := DefaultRateLimits()
	if limits.Window <= 0 {
		limits.Window = def.Window
	}
	if limits.Auth <= 0 {
		limits.Auth = def.Auth
	}
	if limits.Write <= 0 {
		limits.Write = def.Write
	}
	if limits.General <= 0 {
		limits.General = def.General
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{counter: counter, limits: limits, audit: audit, logger: logger, now: time.Now}
}

// WithClock overrides the time source
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Classify picks the rate-limit category for a request. CORS preflights
// carry no credentials and count as general traffic on every path.
func Classify(method, path string) core.Category {
	if method == http.MethodOptions {
		return core.CategoryGeneral
	}
	if strings.HasPrefix(path, "/auth/") {
		return core.CategoryAuth
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return core.CategoryWrite
	}
	return core.CategoryGeneral
}

// Limit returns the ceiling for category
func (l *RateLimiter) Limit(category core.Category) int {
	switch category {
	case core.CategoryAuth:
		return l.limits.Auth
	case core.CategoryWrite:
		return l.limits.Write
	default:
		return l.limits.General
	}
}

// Admit counts one request from clientKey and decides whether to serve it.
// Counter failures deny the request.
func (l *RateLimiter) Admit(ctx context.Context, clientKey string, category core.Category) core.RateDecision {
	limit := l.Limit(category)
	now := l.now()

	count, resetAt, err := l.counter.Increment(ctx, string(category)+"|"+clientKey, l.limits.Window)
	if err != nil {
		l.logger.Error("rate counter unavailable, rejecting request", "category", category, "error", err)
		return core.RateDecision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    now.Add(failClosedDelay),
			RetryAfter: failClosedDelay,
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	decision := core.RateDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if decision.Allowed {
		return decision
	}

	decision.RetryAfter = resetAt.Sub(now)
	l.logger.Warn("rate limit exceeded", "client", clientKey, "category", category, "count", count, "limit", limit)
	l.audit.Record(ctx, newAuditEvent(core.AuditRateLimited, clientKey, "rate limit exceeded",
		map[string]string{"category": string(category)}, now))
	return decision
}

// Unmetered describes a request that is served without being counted: the
// full ceiling remains and the window starts now.
func (l *RateLimiter) Unmetered(category core.Category) core.RateDecision {
	limit := l.Limit(category)
	return core.RateDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   l.now().Add(l.limits.Window),
	}
}
