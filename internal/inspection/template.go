package inspection

import (
	"time"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// CriterionTemplate is read-only configuration for one criterion.
type CriterionTemplate struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Category    Category `yaml:"category" json:"category" validate:"required,oneof=measurement visual functional material"`
}

// CheckpointTemplate is read-only configuration for one checkpoint.
type CheckpointTemplate struct {
	ID          string              `yaml:"id" json:"id" validate:"required"`
	Name        string              `yaml:"name" json:"name" validate:"required"`
	Description string              `yaml:"description" json:"description,omitempty"`
	Stage       Stage               `yaml:"stage" json:"stage" validate:"required,oneof=measurement cutting sewing fitting finishing packaging"`
	Required    bool                `yaml:"required" json:"required"`
	Criteria    []CriterionTemplate `yaml:"criteria" json:"criteria" validate:"dive"`
}

// TemplateSet is an ordered list of checkpoint templates.
type TemplateSet struct {
	ID          string               `yaml:"id" json:"id" validate:"required"`
	Name        string               `yaml:"name" json:"name"`
	Checkpoints []CheckpointTemplate `yaml:"checkpoints" json:"checkpoints" validate:"dive"`
}

// RosterEntry is the inbound order/member record an inspection starts from.
type RosterEntry struct {
	SubjectID    string
	OrderNumber  string
	Role         string
	PriorityHint Priority
}

// NewParams carries everything needed to start an inspection.
type NewParams struct {
	ID                    string
	Entry                 RosterEntry
	EstimatedCompletionAt *time.Time
}

// ValidateTemplateSet rejects sets that cannot produce a scoreable inspection.
func ValidateTemplateSet(set *TemplateSet) error {
	if set == nil || len(set.Checkpoints) == 0 {
		id := ""
		if set != nil {
			id = set.ID
		}
		return errors.Newf(errors.ErrCodeTemplateNotFound, "template set %q is absent or empty", id)
	}
	seen := make(map[string]struct{}, len(set.Checkpoints))
	for _, cp := range set.Checkpoints {
		if len(cp.Criteria) == 0 {
			return errors.Newf(errors.ErrCodeInvalidTemplate, "checkpoint template %q has no criteria", cp.ID)
		}
		if _, dup := seen[cp.ID]; dup {
			return errors.Newf(errors.ErrCodeInvalidTemplate, "checkpoint template %q appears twice", cp.ID)
		}
		seen[cp.ID] = struct{}{}

		criteria := make(map[string]struct{}, len(cp.Criteria))
		for _, cr := range cp.Criteria {
			if _, dup := criteria[cr.ID]; dup {
				return errors.Newf(errors.ErrCodeInvalidTemplate, "criterion %q appears twice in checkpoint %q", cr.ID, cp.ID)
			}
			criteria[cr.ID] = struct{}{}
		}
	}
	return nil
}

// New snapshots set into a fresh Inspection at version 1. Later changes to the
// template set do not affect the returned value.
func New(params NewParams, set *TemplateSet, now time.Time) (*Inspection, error) {
	if err := ValidateTemplateSet(set); err != nil {
		return nil, err
	}
	if params.Entry.SubjectID == "" {
		return nil, errors.InvalidInput("subject_id", "subject id is required")
	}
	if params.Entry.OrderNumber == "" {
		return nil, errors.InvalidInput("order_number", "order number is required")
	}

	priority := params.Entry.PriorityHint
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.InvalidInput("priority", "unknown priority "+string(priority))
	}

	checkpoints := make([]Checkpoint, 0, len(set.Checkpoints))
	for _, ct := range set.Checkpoints {
		criteria := make([]Criterion, 0, len(ct.Criteria))
		for _, crt := range ct.Criteria {
			criteria = append(criteria, Criterion{
				TemplateID: crt.ID,
				Name:       crt.Name,
				Category:   crt.Category,
			})
		}
		checkpoints = append(checkpoints, Checkpoint{
			TemplateID:  ct.ID,
			Name:        ct.Name,
			Description: ct.Description,
			Stage:       ct.Stage,
			Required:    ct.Required,
			Status:      CheckpointPending,
			Criteria:    criteria,
		})
	}

	insp := &Inspection{
		ID:                    params.ID,
		SubjectID:             params.Entry.SubjectID,
		OrderNumber:           params.Entry.OrderNumber,
		Role:                  params.Entry.Role,
		TemplateSetID:         set.ID,
		Checkpoints:           checkpoints,
		Priority:              priority,
		StartedAt:             now,
		EstimatedCompletionAt: cloneTime(params.EstimatedCompletionAt),
		Version:               1,
	}
	insp.Recompute(now)
	return insp, nil
}
