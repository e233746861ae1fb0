package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

// DefaultIdempotencyTTL is how long completed responses are replayable
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyGuard makes write handlers safe to retry
type IdempotencyGuard struct {
	store  ports.IdempotencyStore
	ttl    time.Duration
	audit  ports.AuditSink
	logger *slog.Logger
}

// NewIdempotencyGuard creates a guard storing responses for ttl
func NewIdempotencyGuard(store ports.IdempotencyStore, ttl time.Duration, audit ports.AuditSink, logger *slog.Logger) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyGuard{store: store, ttl: ttl, audit: audit, logger: logger}
}

// Reservation is the caller's claim on an idempotency key
type Reservation struct {
	guard  *IdempotencyGuard
	record core.IdempotencyRecord
}

// Key returns the scoped store key
func (r *Reservation) Key() string {
	return r.record.Key
}

// Finish stores a successful response for replay or releases the key
// so the request can be retried.
func (r *Reservation) Finish(ctx context.Context, response core.StoredResponse) error {
	ctx = context.WithoutCancel(ctx)
	if !response.Successful() {
		return r.guard.store.Release(ctx, r.record.Key)
	}

	record := r.record
	record.Status = core.IdempotencyCompleted
	record.Response = response
	if err := r.guard.store.Complete(ctx, record); err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return nil
}

// Abort releases the key without storing a response
func (r *Reservation) Abort(ctx context.Context) error {
	return r.guard.store.Release(context.WithoutCancel(ctx), r.record.Key)
}

// Begin claims key for a request to route, such as "POST /api/transfers".
// When an identical request already completed, it returns the stored
// response to replay and a nil reservation. Reusing a key on another route
// is a conflict.
func (g *IdempotencyGuard) Begin(ctx context.Context, scope, route, key string, body []byte) (*Reservation, *core.StoredResponse, error) {
	if err := ValidateIdempotencyKey(key); err != nil {
		return nil, nil, err
	}

	storeKey := ScopedKey(scope, key)
	hash := RequestHash(route, body)

	record, reserved, err := g.store.Reserve(ctx, storeKey, hash, g.ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return &Reservation{guard: g, record: record}, nil, nil
	}

	if record.RequestHash != hash {
		g.logger.Warn("idempotency key reused with a different request", "key", key, "route", route, "scope", core.TruncateIdentity(scope))
		g.audit.Record(ctx, newAuditEvent(core.AuditIdempotencyConflict, core.TruncateIdentity(scope),
			"idempotency key reused with a different request", map[string]string{"key": key}, time.Now()))
		return nil, nil, core.ErrIdempotencyConflict
	}
	if record.Status != core.IdempotencyCompleted {
		return nil, nil, core.ErrIdempotencyInFlight
	}
	replay := record.Response
	return nil, &replay, nil
}

// Execute runs handler at most once per key, route and body. An empty key
// runs handler unguarded. The replayed flag reports a cached response.
func (g *IdempotencyGuard) Execute(
	ctx context.Context,
	scope, route, key string,
	body []byte,
	handler func(ctx context.Context) (core.StoredResponse, error),
) (core.StoredResponse, bool, error) {
	if key == "" {
		resp, err := handler(ctx)
		return resp, false, err
	}

	reservation, replay, err := g.Begin(ctx, scope, route, key, body)
	if err != nil {
		return core.StoredResponse{}, false, err
	}
	if replay != nil {
		return *replay, true, nil
	}

	resp, err := handler(ctx)
	if err != nil {
		if relErr := reservation.Abort(ctx); relErr != nil {
			g.logger.Error("failed to release idempotency key", "key", key, "error", relErr)
		}
		return core.StoredResponse{}, false, err
	}
	if err := reservation.Finish(ctx, resp); err != nil {
		g.logger.Error("failed to store idempotent response", "key", key, "error", err)
	}
	return resp, false, nil
}

// ValidateIdempotencyKey rejects blank and oversized keys
func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" || len(key) > core.MaxIdempotencyKeyLength {
		return core.ErrInvalidKey
	}
	return nil
}

// ScopedKey namespaces key by the caller identity when there is one
func ScopedKey(scope, key string) string {
	if scope == "" {
		return key
	}
	return scope + ":" + key
}

// RequestHash fingerprints a request by route and body. JSON bodies are
// re-encoded with sorted keys first so formatting does not change the hash.
func RequestHash(route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(canonicalBody(body))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalBody(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return body
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return body
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return canonical
}
