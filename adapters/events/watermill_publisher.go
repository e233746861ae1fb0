package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
)

const (
	LogoutTopic = "remitgate.logout"
	AuditTopic  = "remitgate.audit"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Identity  string `json:"identity"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher publishes logout and audit events using Watermill.
// It implements both ports.EventPublisher and ports.AuditSink.
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, logger *slog.Logger) *WatermillPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, identity, sessionID string) error {
	payload, err := json.Marshal(LogoutEvent{Identity: identity, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(LogoutTopic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Record publishes an audit event. Failures are logged and dropped.
func (p *WatermillPublisher) Record(ctx context.Context, event core.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("audit encode failed", "event", event.Type, "error", err)
		return
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(AuditTopic, msg); err != nil {
		p.logger.Error("audit publish failed", "event", event.Type, "error", err)
	}
}
