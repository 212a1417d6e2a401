package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
)

// Publisher is the transport the notification publisher writes to. The
// platform NATS client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes inspection events to NATS JetStream for
// reporting and notification consumers.
//
// Subject convention: <prefix>.<event_type>, e.g.
// qc.inspections.criterion_submitted. Failures are logged and returned so the
// dispatcher can count them; they never reach the inspection operation that
// produced the event.
type NotificationPublisher struct {
	pub    Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID       string                `json:"event_id"`
	EventType     inspection.EventType  `json:"event_type"`
	InspectionID  string                `json:"inspection_id"`
	Version       int64                 `json:"version"`
	ActorID       string                `json:"actor_id,omitempty"`
	CheckpointID  string                `json:"checkpoint_id,omitempty"`
	StatusBefore  inspection.Status     `json:"status_before,omitempty"`
	StatusAfter   inspection.Status     `json:"status_after"`
	StatusChanged bool                  `json:"status_changed"`
	Severity      string                `json:"severity"`
	OccurredAt    string                `json:"occurred_at"`
	Projection    inspection.Projection `json:"projection"`
}

// NewNotificationPublisher creates a publisher. A nil pub disables publishing.
func NewNotificationPublisher(pub Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "qc.inspections"
	}
	return &NotificationPublisher{pub: pub, prefix: prefix, log: log}
}

// Subject returns the subject an event type is published on.
func (p *NotificationPublisher) Subject(t inspection.EventType) string {
	return fmt.Sprintf("%s.%s", p.prefix, t)
}

// PublishInspectionEvent publishes ev together with the projection of the
// inspection it produced.
func (p *NotificationPublisher) PublishInspectionEvent(ctx context.Context, ev *inspection.Event, proj inspection.Projection) error {
	if p.pub == nil {
		return nil
	}

	msg := &NotificationEvent{
		EventID:       ev.ID,
		EventType:     ev.Type,
		InspectionID:  ev.InspectionID,
		Version:       ev.Version,
		ActorID:       ev.ActorID,
		CheckpointID:  ev.CheckpointID,
		StatusBefore:  ev.StatusBefore,
		StatusAfter:   ev.StatusAfter,
		StatusChanged: ev.StatusChanged(),
		Severity:      severity(ev),
		OccurredAt:    ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		Projection:    proj,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("notification: failed to marshal event")
		return err
	}

	subject := p.Subject(ev.Type)
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("inspection_id", ev.InspectionID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Str("inspection_id", ev.InspectionID).
		Int64("version", ev.Version).
		Msg("notification: event published")
	return nil
}

func severity(ev *inspection.Event) string {
	switch {
	case ev.StatusAfter == inspection.StatusFailed,
		ev.Type == inspection.EventCheckpointEscalated:
		return "critical"
	case ev.StatusAfter == inspection.StatusRequiresRework && ev.StatusChanged():
		return "warning"
	default:
		return "info"
	}
}
