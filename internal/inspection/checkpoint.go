package inspection

import "time"

// DeriveCheckpointStatus rolls criteria into a checkpoint outcome. A
// checkpoint with no criteria is reported pending, never passed.
func DeriveCheckpointStatus(criteria []Criterion) CheckpointStatus {
	set, failed := 0, 0
	for _, c := range criteria {
		if !c.IsSet() {
			continue
		}
		set++
		if !*c.Passed {
			failed++
		}
	}

	switch {
	case set == 0:
		return CheckpointPending
	case set < len(criteria):
		return CheckpointInProgress
	case failed > 0:
		return CheckpointFailed
	default:
		return CheckpointPassed
	}
}

// CountResults returns how many criteria are set and how many of those passed.
func CountResults(criteria []Criterion) (set, passed int) {
	for _, c := range criteria {
		if c.IsSet() {
			set++
			if *c.Passed {
				passed++
			}
		}
	}
	return set, passed
}

// aggregate re-derives the checkpoint status from its criteria and stamps
// completion on a transition into passed or failed. It reports whether the
// checkpoint has just finalized.
func (c *Checkpoint) aggregate(actorID string, now time.Time) bool {
	prev := c.Status
	c.Status = DeriveCheckpointStatus(c.Criteria)
	if c.Status == prev {
		return false
	}
	if c.Status == CheckpointPassed || c.Status == CheckpointFailed {
		c.CompletedAt = &now
		c.CompletedBy = actorID
		return true
	}
	c.CompletedAt = nil
	c.CompletedBy = ""
	return false
}
