package core

import "time"

// AuditType identifies a security-relevant event
type AuditType string

const (
	AuditChallenge           AuditType = "auth.challenge"
	AuditLoginSuccess        AuditType = "auth.login.success"
	AuditLoginFailure        AuditType = "auth.login.failure"
	AuditLogout              AuditType = "auth.logout"
	AuditSessionExpired      AuditType = "session.expired"
	AuditIdempotencyConflict AuditType = "idempotency.conflict"
	AuditRateLimited         AuditType = "ratelimit.denied"
)

// AuditEvent is an append-only record consumed by the admin endpoints
type AuditEvent struct {
	ID        string            `json:"id"`
	Type      AuditType         `json:"type"`
	Actor     string            `json:"actor"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
