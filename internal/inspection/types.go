// Package inspection implements the garment quality-inspection engine:
// criterion evaluation, checkpoint aggregation, stage progression and the
// score/status rollup over a single Inspection aggregate.
//
// Everything here is synchronous and free of I/O. The registry in
// internal/service loads an Inspection, clones it, applies one of the
// operations below and writes the result back conditionally on Version.
package inspection

import (
	"slices"
	"time"
)

// Stage is a named production phase. Declaration order is production order.
type Stage string

const (
	StageMeasurement Stage = "measurement"
	StageCutting     Stage = "cutting"
	StageSewing      Stage = "sewing"
	StageFitting     Stage = "fitting"
	StageFinishing   Stage = "finishing"
	StagePackaging   Stage = "packaging"
)

// Stages lists every stage in production order.
var Stages = []Stage{
	StageMeasurement,
	StageCutting,
	StageSewing,
	StageFitting,
	StageFinishing,
	StagePackaging,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return slices.Contains(Stages, s)
}

// Order returns the position of s in production order, or -1.
func (s Stage) Order() int {
	return slices.Index(Stages, s)
}

// Category classifies a criterion.
type Category string

const (
	CategoryMeasurement Category = "measurement"
	CategoryVisual      Category = "visual"
	CategoryFunctional  Category = "functional"
	CategoryMaterial    Category = "material"
)

// CheckpointStatus is the aggregated outcome of a checkpoint.
type CheckpointStatus string

const (
	CheckpointPending           CheckpointStatus = "pending"
	CheckpointInProgress        CheckpointStatus = "in_progress"
	CheckpointPassed            CheckpointStatus = "passed"
	CheckpointFailed            CheckpointStatus = "failed"
	CheckpointRequiresAttention CheckpointStatus = "requires_attention"
)

// Closed reports whether the checkpoint no longer accepts criterion results
// without a reopen.
func (s CheckpointStatus) Closed() bool {
	return s == CheckpointPassed || s == CheckpointFailed || s == CheckpointRequiresAttention
}

// Status is the overall status of an Inspection.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusPassed         Status = "passed"
	StatusFailed         Status = "failed"
	StatusRequiresRework Status = "requires_rework"
)

// Valid reports whether s is a known overall status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPassed, StatusFailed, StatusRequiresRework:
		return true
	}
	return false
}

// Priority orders inspections for coordinators.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank is higher for more urgent priorities; unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Inspector is referenced by id from an Inspection.
type Inspector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Criterion is one atomic pass/fail check inside a checkpoint. Passed is nil
// until an inspector records a result.
type Criterion struct {
	TemplateID    string     `json:"criterion_template_id"`
	Name          string     `json:"name"`
	Category      Category   `json:"category"`
	Passed        *bool      `json:"passed"`
	Notes         string     `json:"notes,omitempty"`
	Evidence      []string   `json:"evidence,omitempty"`
	LastUpdatedBy string     `json:"last_updated_by,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// IsSet reports whether a result has been recorded.
func (c Criterion) IsSet() bool {
	return c.Passed != nil
}

// Checkpoint is one stage-specific quality gate.
type Checkpoint struct {
	TemplateID  string           `json:"checkpoint_template_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Stage       Stage            `json:"stage"`
	Required    bool             `json:"required"`
	Status      CheckpointStatus `json:"status"`
	Criteria    []Criterion      `json:"criteria"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CompletedBy string           `json:"completed_by,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	ReopenCount int              `json:"reopen_count"`
}

// Inspection is the aggregate root tracking one production order.
type Inspection struct {
	ID                    string       `json:"id"`
	SubjectID             string       `json:"subject_id"`
	OrderNumber           string       `json:"order_number"`
	Role                  string       `json:"role,omitempty"`
	TemplateSetID         string       `json:"template_set_id"`
	Checkpoints           []Checkpoint `json:"checkpoints"`
	CurrentStageIndex     int          `json:"current_stage_index"`
	OverallStatus         Status       `json:"overall_status"`
	Priority              Priority     `json:"priority"`
	AssignedInspectorID   string       `json:"assigned_inspector_id,omitempty"`
	StartedAt             time.Time    `json:"started_at"`
	EstimatedCompletionAt *time.Time   `json:"estimated_completion_at,omitempty"`
	ActualCompletionAt    *time.Time   `json:"actual_completion_at,omitempty"`
	QualityScore          int          `json:"quality_score"`
	Version               int64        `json:"version"`
	Cancelled             bool         `json:"cancelled"`
	CancelledAt           *time.Time   `json:"cancelled_at,omitempty"`
	CancelledBy           string       `json:"cancelled_by,omitempty"`
	CancelReason          string       `json:"cancel_reason,omitempty"`
	Rejected              bool         `json:"rejected"`
	RejectReason          string       `json:"reject_reason,omitempty"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the inspection accepts no further mutations.
func (i *Inspection) IsTerminal() bool {
	return i.Cancelled || i.OverallStatus == StatusPassed || i.OverallStatus == StatusFailed
}

// Clone returns a deep copy safe to mutate.
func (i *Inspection) Clone() *Inspection {
	if i == nil {
		return nil
	}
	out := *i
	out.EstimatedCompletionAt = cloneTime(i.EstimatedCompletionAt)
	out.ActualCompletionAt = cloneTime(i.ActualCompletionAt)
	out.CancelledAt = cloneTime(i.CancelledAt)
	out.Checkpoints = make([]Checkpoint, len(i.Checkpoints))
	for idx, cp := range i.Checkpoints {
		out.Checkpoints[idx] = cp.clone()
	}
	return &out
}

func (c Checkpoint) clone() Checkpoint {
	out := c
	out.CompletedAt = cloneTime(c.CompletedAt)
	out.Criteria = make([]Criterion, len(c.Criteria))
	for idx, cr := range c.Criteria {
		out.Criteria[idx] = cr.clone()
	}
	return out
}

func (c Criterion) clone() Criterion {
	out := c
	if c.Passed != nil {
		v := *c.Passed
		out.Passed = &v
	}
	out.LastUpdatedAt = cloneTime(c.LastUpdatedAt)
	if c.Evidence != nil {
		out.Evidence = slices.Clone(c.Evidence)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (i *Inspection) checkpointIndex(id string) int {
	return slices.IndexFunc(i.Checkpoints, func(cp Checkpoint) bool {
		return cp.TemplateID == id
	})
}

func (c *Checkpoint) criterionIndex(id string) int {
	return slices.IndexFunc(c.Criteria, func(cr Criterion) bool {
		return cr.TemplateID == id
	})
}

// Checkpoint returns a copy of the checkpoint with the given id.
func (i *Inspection) Checkpoint(id string) (Checkpoint, bool) {
	idx := i.checkpointIndex(id)
	if idx < 0 {
		return Checkpoint{}, false
	}
	return i.Checkpoints[idx].clone(), true
}
