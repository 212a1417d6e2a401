package inspection

import (
	"time"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// advance moves the stage pointer past every leading passed checkpoint. It
// never moves backwards.
func (i *Inspection) advance() {
	for i.CurrentStageIndex < len(i.Checkpoints) &&
		i.Checkpoints[i.CurrentStageIndex].Status == CheckpointPassed {
		i.CurrentStageIndex++
	}
}

// Complete reports whether every checkpoint has passed.
func (i *Inspection) Complete() bool {
	return i.CurrentStageIndex >= len(i.Checkpoints)
}

// CurrentCheckpoint returns the checkpoint accepting submissions, or false
// once all checkpoints have passed.
func (i *Inspection) CurrentCheckpoint() (Checkpoint, bool) {
	if i.Complete() {
		return Checkpoint{}, false
	}
	return i.Checkpoints[i.CurrentStageIndex].clone(), true
}

// CurrentStage returns the stage of the current checkpoint, or "" when complete.
func (i *Inspection) CurrentStage() Stage {
	if i.Complete() {
		return ""
	}
	return i.Checkpoints[i.CurrentStageIndex].Stage
}

// ReopenCheckpoint resets a failed or escalated checkpoint so it can be
// re-inspected. The stage pointer is left where it is.
func (i *Inspection) ReopenCheckpoint(checkpointID, actorID, reason string, now time.Time) error {
	if i.IsTerminal() {
		return errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	idx := i.checkpointIndex(checkpointID)
	if idx < 0 {
		return errors.NotFound("checkpoint", checkpointID)
	}
	cp := &i.Checkpoints[idx]
	if cp.Status != CheckpointFailed && cp.Status != CheckpointRequiresAttention {
		return errors.Newf(errors.ErrCodeConflict,
			"checkpoint %s cannot be reopened from status %s", cp.TemplateID, cp.Status)
	}

	for k := range cp.Criteria {
		c := &cp.Criteria[k]
		c.Passed = nil
		c.Notes = ""
		c.Evidence = nil
		c.LastUpdatedBy = actorID
		c.LastUpdatedAt = &now
	}
	cp.Status = CheckpointPending
	cp.CompletedAt = nil
	cp.CompletedBy = ""
	cp.Notes = reason
	cp.ReopenCount++

	i.Recompute(now)
	return nil
}

// EscalateCheckpoint is the supervisor override moving a failed checkpoint
// to requires_attention instead of immediate rework.
func (i *Inspection) EscalateCheckpoint(checkpointID, actorID, reason string, now time.Time) error {
	if i.IsTerminal() {
		return errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	idx := i.checkpointIndex(checkpointID)
	if idx < 0 {
		return errors.NotFound("checkpoint", checkpointID)
	}
	cp := &i.Checkpoints[idx]
	if cp.Status != CheckpointFailed {
		return errors.Newf(errors.ErrCodeConflict,
			"only failed checkpoints can be escalated; %s is %s", cp.TemplateID, cp.Status)
	}
	cp.Status = CheckpointRequiresAttention
	cp.Notes = reason

	i.Recompute(now)
	return nil
}

// Cancel marks the inspection cancelled, preserving stage data. Cancelling an
// already-cancelled inspection is a no-op and reports changed=false.
func (i *Inspection) Cancel(actorID, reason string, now time.Time) (changed bool, err error) {
	if i.Cancelled {
		return false, nil
	}
	if i.IsTerminal() {
		return false, errors.Newf(errors.ErrCodeAlreadyFinalized,
			"inspection %s is already %s", i.ID, i.OverallStatus)
	}
	i.Cancelled = true
	i.CancelledAt = &now
	i.CancelledBy = actorID
	i.CancelReason = reason
	i.UpdatedAt = now
	return true, nil
}

// Reject is the terminal administrative failure used when rework is declined.
func (i *Inspection) Reject(actorID, reason string, now time.Time) error {
	if i.IsTerminal() {
		return errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	if i.OverallStatus != StatusRequiresRework {
		return errors.Newf(errors.ErrCodeConflict,
			"inspection can only be rejected from %s (status: %s)", StatusRequiresRework, i.OverallStatus)
	}
	if reason == "" {
		return errors.InvalidInput("reason", "rejection reason is required")
	}
	i.Rejected = true
	i.RejectReason = reason
	i.Recompute(now)
	return nil
}

// AssignInspector sets the responsible inspector. Replacing a different
// inspector requires canOverride. Re-assigning the same inspector reports
// changed=false.
func (i *Inspection) AssignInspector(inspectorID string, canOverride bool, now time.Time) (changed bool, err error) {
	if inspectorID == "" {
		return false, errors.InvalidInput("inspector_id", "inspector id is required")
	}
	if i.IsTerminal() {
		return false, errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	if i.AssignedInspectorID == inspectorID {
		return false, nil
	}
	if i.AssignedInspectorID != "" && !canOverride {
		return false, errors.Conflict("inspection is already assigned to inspector " + i.AssignedInspectorID)
	}
	i.AssignedInspectorID = inspectorID
	i.UpdatedAt = now
	return true, nil
}

// SetPriority changes the coordination priority.
func (i *Inspection) SetPriority(p Priority, now time.Time) (changed bool, err error) {
	if !p.Valid() {
		return false, errors.InvalidInput("priority", "unknown priority "+string(p))
	}
	if i.IsTerminal() {
		return false, errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	if i.Priority == p {
		return false, nil
	}
	i.Priority = p
	i.UpdatedAt = now
	return true, nil
}

// SetEstimatedCompletion records advisory completion data; nil clears it.
func (i *Inspection) SetEstimatedCompletion(at *time.Time, now time.Time) error {
	if i.IsTerminal() {
		return errors.Newf(errors.ErrCodeAlreadyFinalized, "inspection %s is closed", i.ID)
	}
	if at != nil && at.Before(i.StartedAt) {
		return errors.InvalidInput("estimated_completion_at", "estimate precedes the inspection start")
	}
	i.EstimatedCompletionAt = cloneTime(at)
	i.UpdatedAt = now
	return nil
}
