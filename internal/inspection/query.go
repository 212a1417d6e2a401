package inspection

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// Filter selects inspections. Zero-valued fields match everything.
type Filter struct {
	Stage            Stage
	Status           Status
	Priority         Priority
	InspectorID      string
	IncludeCancelled bool
}

// Matches reports whether insp satisfies the filter.
func (f Filter) Matches(insp *Inspection) bool {
	if insp.Cancelled && !f.IncludeCancelled {
		return false
	}
	if f.Stage != "" && insp.CurrentStage() != f.Stage {
		return false
	}
	if f.Status != "" && insp.OverallStatus != f.Status {
		return false
	}
	if f.Priority != "" && insp.Priority != f.Priority {
		return false
	}
	if f.InspectorID != "" && insp.AssignedInspectorID != f.InspectorID {
		return false
	}
	return true
}

// SortByPriority orders most urgent first, then oldest first, then by id.
func SortByPriority(list []*Inspection) {
	slices.SortStableFunc(list, func(a, b *Inspection) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CheckpointSummary is the per-checkpoint part of a status projection.
type CheckpointSummary struct {
	CheckpointID   string           `json:"checkpoint_id"`
	Name           string           `json:"name"`
	Stage          Stage            `json:"stage"`
	Status         CheckpointStatus `json:"status"`
	CriteriaTotal  int              `json:"criteria_total"`
	CriteriaSet    int              `json:"criteria_set"`
	CriteriaPassed int              `json:"criteria_passed"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CompletedBy    string           `json:"completed_by,omitempty"`
	ReopenCount    int              `json:"reopen_count"`
}

// Projection is the read model handed to reporting and notification consumers.
type Projection struct {
	InspectionID          string              `json:"inspection_id"`
	SubjectID             string              `json:"subject_id"`
	OrderNumber           string              `json:"order_number"`
	OverallStatus         Status              `json:"overall_status"`
	QualityScore          int                 `json:"quality_score"`
	CurrentStage          Stage               `json:"current_stage,omitempty"`
	CurrentStageIndex     int                 `json:"current_stage_index"`
	Checkpoints           []CheckpointSummary `json:"checkpoints"`
	Priority              Priority            `json:"priority"`
	AssignedInspectorID   string              `json:"assigned_inspector_id,omitempty"`
	Cancelled             bool                `json:"cancelled"`
	StartedAt             time.Time           `json:"started_at"`
	EstimatedCompletionAt *time.Time          `json:"estimated_completion_at,omitempty"`
	ActualCompletionAt    *time.Time          `json:"actual_completion_at,omitempty"`
	Version               int64               `json:"version"`
}

// Project builds the status projection of insp.
func Project(insp *Inspection) Projection {
	summaries := make([]CheckpointSummary, 0, len(insp.Checkpoints))
	for _, cp := range insp.Checkpoints {
		set, passed := CountResults(cp.Criteria)
		summaries = append(summaries, CheckpointSummary{
			CheckpointID:   cp.TemplateID,
			Name:           cp.Name,
			Stage:          cp.Stage,
			Status:         cp.Status,
			CriteriaTotal:  len(cp.Criteria),
			CriteriaSet:    set,
			CriteriaPassed: passed,
			CompletedAt:    cloneTime(cp.CompletedAt),
			CompletedBy:    cp.CompletedBy,
			ReopenCount:    cp.ReopenCount,
		})
	}
	return Projection{
		InspectionID:          insp.ID,
		SubjectID:             insp.SubjectID,
		OrderNumber:           insp.OrderNumber,
		OverallStatus:         insp.OverallStatus,
		QualityScore:          insp.QualityScore,
		CurrentStage:          insp.CurrentStage(),
		CurrentStageIndex:     insp.CurrentStageIndex,
		Checkpoints:           summaries,
		Priority:              insp.Priority,
		AssignedInspectorID:   insp.AssignedInspectorID,
		Cancelled:             insp.Cancelled,
		StartedAt:             insp.StartedAt,
		EstimatedCompletionAt: cloneTime(insp.EstimatedCompletionAt),
		ActualCompletionAt:    cloneTime(insp.ActualCompletionAt),
		Version:               insp.Version,
	}
}

// Stats summarises a set of inspections for dashboards.
type Stats struct {
	Total        int              `json:"total"`
	Cancelled    int              `json:"cancelled"`
	ByStatus     map[Status]int   `json:"by_status"`
	ByPriority   map[Priority]int `json:"by_priority"`
	ByStage      map[Stage]int    `json:"by_stage"`
	AverageScore float64          `json:"average_score"`
}

// Summarize counts inspections by status, priority and current stage. The
// average score covers non-cancelled inspections with at least one finalized
// checkpoint.
func Summarize(list []*Inspection) Stats {
	s := Stats{
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
		ByStage:    make(map[Stage]int),
	}
	scored, total := 0, 0
	for _, insp := range list {
		s.Total++
		if insp.Cancelled {
			s.Cancelled++
			continue
		}
		s.ByStatus[insp.OverallStatus]++
		s.ByPriority[insp.Priority]++
		if stage := insp.CurrentStage(); stage != "" {
			s.ByStage[stage]++
		}
		if hasFinalized(insp.Checkpoints) {
			scored++
			total += insp.QualityScore
		}
	}
	if scored > 0 {
		s.AverageScore = math.Round(float64(total)/float64(scored)*100) / 100
	}
	return s
}

func hasFinalized(checkpoints []Checkpoint) bool {
	return slices.ContainsFunc(checkpoints, func(cp Checkpoint) bool {
		return cp.Status.Closed()
	})
}
