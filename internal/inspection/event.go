package inspection

import "time"

// EventType names an audited action.
type EventType string

const (
	EventCreated             EventType = "inspection_created"
	EventCriterionSubmitted  EventType = "criterion_submitted"
	EventCheckpointReopened  EventType = "checkpoint_reopened"
	EventCheckpointEscalated EventType = "checkpoint_escalated"
	EventInspectorAssigned   EventType = "inspector_assigned"
	EventPriorityChanged     EventType = "priority_changed"
	EventEstimateChanged     EventType = "estimate_changed"
	EventInspectionCancelled EventType = "inspection_cancelled"
	EventInspectionRejected  EventType = "inspection_rejected"
)

// Event is one immutable audit record. Version is the inspection version the
// event produced, which orders events within one inspection.
type Event struct {
	ID               string           `json:"id"`
	InspectionID     string           `json:"inspection_id"`
	Version          int64            `json:"version"`
	Type             EventType        `json:"type"`
	ActorID          string           `json:"actor_id"`
	CheckpointID     string           `json:"checkpoint_id,omitempty"`
	CriterionID      string           `json:"criterion_id,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	StatusBefore     Status           `json:"status_before,omitempty"`
	StatusAfter      Status           `json:"status_after"`
	CheckpointStatus CheckpointStatus `json:"checkpoint_status,omitempty"`
	ScoreAfter       int              `json:"score_after"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// StatusChanged reports whether the event moved the overall status.
func (e Event) StatusChanged() bool {
	return e.StatusBefore != e.StatusAfter
}
