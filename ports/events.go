package ports

import (
	"context"

	"github.com/layer-3/remitgate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, identity, sessionID string) error
}

// AuditSink receives audit events. Recording never fails the caller;
// implementations report their own errors.
type AuditSink interface {
	Record(ctx context.Context, event core.AuditEvent)
}
