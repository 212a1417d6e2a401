package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
)

type capture struct {
	subject string
	data    []byte
	err     error
}

func (c *capture) Publish(_ context.Context, subject string, data []byte) error {
	c.subject, c.data = subject, data
	return c.err
}

func TestPublishInspectionEvent(t *testing.T) {
	pub := &capture{}
	p := NewNotificationPublisher(pub, "", zerolog.Nop())

	ev := &inspection.Event{
		ID:           "ev-1",
		InspectionID: "insp-1",
		Version:      4,
		Type:         inspection.EventCriterionSubmitted,
		StatusBefore: inspection.StatusInProgress,
		StatusAfter:  inspection.StatusRequiresRework,
		OccurredAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishInspectionEvent(context.Background(), ev, inspection.Projection{InspectionID: "insp-1", QualityScore: 50}))
	assert.Equal(t, "qc.inspections.criterion_submitted", pub.subject)

	var msg NotificationEvent
	require.NoError(t, json.Unmarshal(pub.data, &msg))
	assert.Equal(t, "insp-1", msg.InspectionID)
	assert.True(t, msg.StatusChanged)
	assert.Equal(t, "warning", msg.Severity)
	assert.Equal(t, 50, msg.Projection.QualityScore)
}

func TestPublishReturnsTransportErrors(t *testing.T) {
	pub := &capture{err: stderrors.New("no responders")}
	p := NewNotificationPublisher(pub, "qc.test", zerolog.Nop())

	err := p.PublishInspectionEvent(context.Background(), &inspection.Event{Type: inspection.EventCreated}, inspection.Projection{})
	assert.Error(t, err)
	assert.Equal(t, "qc.test.inspection_created", pub.subject)
}

func TestNilPublisherIsDisabled(t *testing.T) {
	p := NewNotificationPublisher(nil, "", zerolog.Nop())
	assert.NoError(t, p.PublishInspectionEvent(context.Background(), &inspection.Event{}, inspection.Projection{}))
}
