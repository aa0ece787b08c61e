// Package client holds thin adapters for external collaborators.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes approval workflow events to NATS for the
// notification service that renders them as user-facing toasts.
//
// Subject convention: notifications.approvals.<event_type>
// Event types: approval_started, step_approved, approval_completed,
//              approval_rejected
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	ActorID    string                 `json:"actor_id"`
	PaymentID  string                 `json:"payment_id"`
	ApprovalID string                 `json:"approval_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection yields a publisher that drops every event.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// PublishApprovalEvent publishes one approval event.
// Subject: notifications.approvals.<eventType>
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, eventType, paymentID, approvalID, actorID string, payload map[string]interface{}) {
	if p.nc == nil {
		return
	}

	event := &NotificationEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		ActorID:    actorID,
		PaymentID:  paymentID,
		ApprovalID: approvalID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.approvals.%s", eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("payment_id", paymentID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("payment_id", paymentID).
		Str("approval_id", approvalID).
		Msg("notification: event published")
}
