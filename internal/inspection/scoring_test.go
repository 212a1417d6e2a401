package inspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func cps(statuses ...CheckpointStatus) []Checkpoint {
	out := make([]Checkpoint, len(statuses))
	for i, s := range statuses {
		out[i].Status = s
	}
	return out
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name string
		cps  []Checkpoint
		want int
	}{
		{"nothing finalized", cps(CheckpointPending, CheckpointInProgress), 0},
		{"no checkpoints", nil, 0},
		{"first passed only", cps(CheckpointPassed, CheckpointPending, CheckpointPending), 100},
		{"one of two", cps(CheckpointPassed, CheckpointFailed), 50},
		{"two of three rounds", cps(CheckpointPassed, CheckpointPassed, CheckpointFailed), 67},
		{"one of three rounds", cps(CheckpointPassed, CheckpointFailed, CheckpointRequiresAttention), 33},
		{"escalated counts as failed", cps(CheckpointPassed, CheckpointRequiresAttention), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualityScore(tt.cps)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		cps      []Checkpoint
		rejected bool
		want     Status
	}{
		{"all pending", cps(CheckpointPending, CheckpointPending), false, StatusPending},
		{"some progress", cps(CheckpointInProgress, CheckpointPending), false, StatusInProgress},
		{"passed then pending", cps(CheckpointPassed, CheckpointPending), false, StatusInProgress},
		{"all passed", cps(CheckpointPassed, CheckpointPassed), false, StatusPassed},
		{"any failed", cps(CheckpointPassed, CheckpointFailed, CheckpointPending), false, StatusRequiresRework},
		{"escalated", cps(CheckpointRequiresAttention, CheckpointPending), false, StatusRequiresRework},
		{"rejected wins", cps(CheckpointPassed, CheckpointFailed), true, StatusFailed},
		{"no checkpoints", nil, false, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveOverallStatus(tt.cps, tt.rejected))
		})
	}
}

func TestComputeRollupIsIdempotent(t *testing.T) {
	in := cps(CheckpointPassed, CheckpointFailed, CheckpointInProgress)
	first := ComputeRollup(in, false)
	second := ComputeRollup(in, false)
	assert.Equal(t, first, second)
	assert.Equal(t, Rollup{Status: StatusRequiresRework, Score: 50}, first)
}

func TestRecomputeClearsCompletionOnReopen(t *testing.T) {
	insp := newSuit(t)
	for i := range insp.Checkpoints {
		insp.Checkpoints[i].Status = CheckpointPassed
	}
	insp.Recompute(t0)
	assert.NotNil(t, insp.ActualCompletionAt)

	insp.Checkpoints[2].Status = CheckpointPending
	insp.Recompute(t0)
	assert.Nil(t, insp.ActualCompletionAt)
	assert.Equal(t, StatusInProgress, insp.OverallStatus)
}
