package inspection

import (
	"slices"
	"time"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// Submission is one inspector's result for one criterion.
type Submission struct {
	CheckpointID string
	CriterionID  string
	Passed       bool
	Notes        string
	Evidence     []string
	ActorID      string
}

// SubmitCriterion records a result and synchronously re-aggregates the
// checkpoint, advances the stage pointer and recomputes the rollup.
//
// Checks run in order: terminal inspection, unknown ids, closed checkpoint
// (ALREADY_FINALIZED), then stage order (STAGE_LOCKED).
func (i *Inspection) SubmitCriterion(sub Submission, now time.Time) (Criterion, error) {
	if i.IsTerminal() {
		return Criterion{}, errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	if sub.ActorID == "" {
		return Criterion{}, errors.InvalidInput("actor_id", "actor id is required")
	}

	idx := i.checkpointIndex(sub.CheckpointID)
	if idx < 0 {
		return Criterion{}, errors.NotFound("checkpoint", sub.CheckpointID)
	}
	cp := &i.Checkpoints[idx]

	cIdx := cp.criterionIndex(sub.CriterionID)
	if cIdx < 0 {
		return Criterion{}, errors.NotFound("criterion", sub.CriterionID)
	}

	if cp.Status.Closed() {
		return Criterion{}, errors.Newf(errors.ErrCodeAlreadyFinalized,
			"checkpoint %s is %s; reopen it before submitting", cp.TemplateID, cp.Status)
	}
	if idx != i.CurrentStageIndex {
		return Criterion{}, errors.Newf(errors.ErrCodeStageLocked,
			"checkpoint %s (%s) is not the current stage", cp.TemplateID, cp.Stage)
	}

	passed := sub.Passed
	c := &cp.Criteria[cIdx]
	c.Passed = &passed
	c.Notes = sub.Notes
	c.Evidence = slices.Clone(sub.Evidence)
	c.LastUpdatedBy = sub.ActorID
	c.LastUpdatedAt = &now

	if cp.aggregate(sub.ActorID, now) {
		i.advance()
	}
	i.Recompute(now)

	return c.clone(), nil
}
