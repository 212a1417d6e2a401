package inspection

import (
	"math"
	"time"
)

// Rollup is the derived score and status of a set of checkpoints.
type Rollup struct {
	Status Status
	Score  int
}

// QualityScore is round(100 * passed / finalized). Only finalized checkpoints
// count toward the denominator; an escalated checkpoint counts as a failure.
// The score is 0 while nothing is finalized.
func QualityScore(checkpoints []Checkpoint) int {
	passed, finalized := 0, 0
	for _, cp := range checkpoints {
		switch cp.Status {
		case CheckpointPassed:
			passed++
			finalized++
		case CheckpointFailed, CheckpointRequiresAttention:
			finalized++
		}
	}
	if finalized == 0 {
		return 0
	}
	return int(math.Round(100 * float64(passed) / float64(finalized)))
}

// DeriveOverallStatus computes the inspection status from checkpoint states.
// rejected marks a terminal administrative failure.
func DeriveOverallStatus(checkpoints []Checkpoint, rejected bool) Status {
	if rejected {
		return StatusFailed
	}

	allPassed, allPending, rework := true, true, false
	for _, cp := range checkpoints {
		if cp.Status != CheckpointPassed {
			allPassed = false
		}
		if cp.Status != CheckpointPending {
			allPending = false
		}
		if cp.Status == CheckpointFailed || cp.Status == CheckpointRequiresAttention {
			rework = true
		}
	}

	switch {
	case len(checkpoints) > 0 && allPassed:
		return StatusPassed
	case rework:
		return StatusRequiresRework
	case allPending:
		return StatusPending
	default:
		return StatusInProgress
	}
}

// ComputeRollup derives status and score. It is pure: the same checkpoints
// always produce the same Rollup.
func ComputeRollup(checkpoints []Checkpoint, rejected bool) Rollup {
	return Rollup{
		Status: DeriveOverallStatus(checkpoints, rejected),
		Score:  QualityScore(checkpoints),
	}
}

// Recompute writes the rollup onto the inspection and stamps the actual
// completion time when it reaches a terminal status.
func (i *Inspection) Recompute(now time.Time) {
	r := ComputeRollup(i.Checkpoints, i.Rejected)
	i.OverallStatus = r.Status
	i.QualityScore = r.Score
	i.UpdatedAt = now

	if r.Status == StatusPassed || r.Status == StatusFailed {
		if i.ActualCompletionAt == nil {
			i.ActualCompletionAt = &now
		}
	} else {
		i.ActualCompletionAt = nil
	}
}
