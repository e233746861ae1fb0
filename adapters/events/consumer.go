package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

// ConsumeAudit subscribes to the audit topic and forwards every event to
// sink until ctx is cancelled.
func ConsumeAudit(ctx context.Context, subscriber message.Subscriber, sink ports.AuditSink, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	messages, err := subscriber.Subscribe(ctx, AuditTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", AuditTopic, err)
	}

	for msg := range messages {
		var event core.AuditEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			logger.Warn("dropping malformed audit message", "message_id", msg.UUID, "error", err)
			msg.Ack()
			continue
		}

		sink.Record(msg.Context(), event)
		msg.Ack()
	}

	return nil
}

// SessionInvalidator ends sessions on this instance
type SessionInvalidator interface {
	Invalidate(ctx context.Context, session core.SessionPayload) error
}

// ConsumeLogout subscribes to the logout topic and invalidates each
// announced session locally until ctx is cancelled. Failed invalidations
// are nacked for redelivery.
func ConsumeLogout(ctx context.Context, subscriber message.Subscriber, sessions SessionInvalidator, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	messages, err := subscriber.Subscribe(ctx, LogoutTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", LogoutTopic, err)
	}

	for msg := range messages {
		var event LogoutEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil || event.SessionID == "" {
			logger.Warn("dropping malformed logout message", "message_id", msg.UUID)
			msg.Ack()
			continue
		}

		session := core.SessionPayload{ID: event.SessionID, Identity: event.Identity}
		if err := sessions.Invalidate(msg.Context(), session); err != nil {
			logger.Error("failed to apply logout", "identity", core.TruncateIdentity(event.Identity), "error", err)
			msg.Nack()
			continue
		}
		msg.Ack()
	}

	return nil
}
