package inspection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

func TestSubmissionWalkthrough(t *testing.T) {
	insp := newSuit(t)

	// Two of three measurement criteria.
	submit(t, insp, "measurement", "chest", true)
	submit(t, insp, "measurement", "waist", true)
	cp, _ := insp.Checkpoint("measurement")
	assert.Equal(t, CheckpointInProgress, cp.Status)
	assert.Equal(t, StatusInProgress, insp.OverallStatus)
	assert.Equal(t, 0, insp.QualityScore)
	assert.Equal(t, 0, insp.CurrentStageIndex)

	// Last measurement criterion finalizes and advances.
	submit(t, insp, "measurement", "sleeve", true)
	cp, _ = insp.Checkpoint("measurement")
	assert.Equal(t, CheckpointPassed, cp.Status)
	assert.Equal(t, "inspector-1", cp.CompletedBy)
	assert.Equal(t, 1, insp.CurrentStageIndex)
	assert.Equal(t, StageCutting, insp.CurrentStage())
	assert.Equal(t, 100, insp.QualityScore)

	// Mixed cutting results fail the checkpoint.
	submit(t, insp, "cutting", "grain", true)
	submit(t, insp, "cutting", "pattern", false)
	cp, _ = insp.Checkpoint("cutting")
	assert.Equal(t, CheckpointFailed, cp.Status)
	assert.Equal(t, StatusRequiresRework, insp.OverallStatus)
	assert.Equal(t, 50, insp.QualityScore)
	assert.Equal(t, 1, insp.CurrentStageIndex, "a failed checkpoint keeps the pointer")

	// Reopen and resubmit.
	require.NoError(t, insp.ReopenCheckpoint("cutting", "supervisor-1", "recut panel", t0.Add(time.Hour)))
	submit(t, insp, "cutting", "grain", true)
	submit(t, insp, "cutting", "pattern", true)
	cp, _ = insp.Checkpoint("cutting")
	assert.Equal(t, CheckpointPassed, cp.Status)
	assert.Equal(t, 1, cp.ReopenCount)
	assert.Equal(t, StatusInProgress, insp.OverallStatus)
	assert.Equal(t, 100, insp.QualityScore)
	assert.Equal(t, 2, insp.CurrentStageIndex)

	// Final checkpoint passes the inspection.
	submit(t, insp, "sewing", "seams", true)
	assert.Equal(t, StatusPassed, insp.OverallStatus)
	assert.True(t, insp.Complete())
	assert.Equal(t, Stage(""), insp.CurrentStage())
	assert.NotNil(t, insp.ActualCompletionAt)
	_, ok := insp.CurrentCheckpoint()
	assert.False(t, ok)

	_, err := insp.SubmitCriterion(Submission{
		CheckpointID: "sewing", CriterionID: "seams", Passed: false, ActorID: "inspector-1",
	}, t0.Add(2*time.Hour))
	assert.Equal(t, errors.ErrCodeAlreadyFinalized, errors.CodeOf(err))
}

func TestSubmitCriterionErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, insp *Inspection)
		sub   Submission
		code  errors.Code
	}{
		{
			name: "out of order checkpoint",
			sub:  Submission{CheckpointID: "sewing", CriterionID: "seams", ActorID: "a"},
			code: errors.ErrCodeStageLocked,
		},
		{
			name: "unknown checkpoint",
			sub:  Submission{CheckpointID: "pressing", CriterionID: "x", ActorID: "a"},
			code: errors.ErrCodeNotFound,
		},
		{
			name: "unknown criterion",
			sub:  Submission{CheckpointID: "measurement", CriterionID: "hem", ActorID: "a"},
			code: errors.ErrCodeNotFound,
		},
		{
			name: "missing actor",
			sub:  Submission{CheckpointID: "measurement", CriterionID: "chest"},
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "passed checkpoint",
			setup: func(t *testing.T, insp *Inspection) {
				submit(t, insp, "measurement", "chest", true)
				submit(t, insp, "measurement", "waist", true)
				submit(t, insp, "measurement", "sleeve", true)
			},
			sub:  Submission{CheckpointID: "measurement", CriterionID: "chest", ActorID: "a"},
			code: errors.ErrCodeAlreadyFinalized,
		},
		{
			name: "failed checkpoint needs reopen",
			setup: func(t *testing.T, insp *Inspection) {
				submit(t, insp, "measurement", "chest", false)
				submit(t, insp, "measurement", "waist", true)
				submit(t, insp, "measurement", "sleeve", true)
			},
			sub:  Submission{CheckpointID: "measurement", CriterionID: "chest", Passed: true, ActorID: "a"},
			code: errors.ErrCodeAlreadyFinalized,
		},
		{
			name: "cancelled inspection",
			setup: func(t *testing.T, insp *Inspection) {
				_, err := insp.Cancel("a", "order withdrawn", t0)
				require.NoError(t, err)
			},
			sub:  Submission{CheckpointID: "measurement", CriterionID: "chest", ActorID: "a"},
			code: errors.ErrCodeAlreadyFinalized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insp := newSuit(t)
			if tt.setup != nil {
				tt.setup(t, insp)
			}
			before := insp.Clone()

			_, err := insp.SubmitCriterion(tt.sub, t0.Add(time.Hour))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, before, insp, "a rejected submission leaves the inspection untouched")
		})
	}
}

func TestResubmitOverwritesResult(t *testing.T) {
	insp := newSuit(t)
	submit(t, insp, "measurement", "chest", false)
	submit(t, insp, "measurement", "chest", true)

	cp, _ := insp.Checkpoint("measurement")
	require.True(t, cp.Criteria[0].IsSet())
	assert.True(t, *cp.Criteria[0].Passed)
	assert.Equal(t, CheckpointInProgress, cp.Status)
}

func TestStageIndexIsMonotonic(t *testing.T) {
	insp := newSuit(t)
	last := insp.CurrentStageIndex
	steps := []struct {
		cp, cr string
		passed bool
	}{
		{"measurement", "chest", true},
		{"measurement", "waist", true},
		{"measurement", "sleeve", true},
		{"cutting", "grain", false},
		{"cutting", "pattern", true},
	}
	for _, s := range steps {
		submit(t, insp, s.cp, s.cr, s.passed)
		assert.GreaterOrEqual(t, insp.CurrentStageIndex, last)
		last = insp.CurrentStageIndex
	}

	require.NoError(t, insp.ReopenCheckpoint("cutting", "sup", "redo", t0))
	assert.Equal(t, last, insp.CurrentStageIndex)
}

func TestReopenCheckpoint(t *testing.T) {
	t.Run("clears criteria and completion", func(t *testing.T) {
		insp := newSuit(t)
		submit(t, insp, "measurement", "chest", false)
		submit(t, insp, "measurement", "waist", true)
		submit(t, insp, "measurement", "sleeve", true)

		require.NoError(t, insp.ReopenCheckpoint("measurement", "sup", "re-measure", t0.Add(time.Hour)))
		cp, _ := insp.Checkpoint("measurement")
		assert.Equal(t, CheckpointPending, cp.Status)
		assert.Nil(t, cp.CompletedAt)
		assert.Empty(t, cp.CompletedBy)
		assert.Equal(t, "re-measure", cp.Notes)
		for _, cr := range cp.Criteria {
			assert.False(t, cr.IsSet())
		}
		assert.Equal(t, StatusPending, insp.OverallStatus)
		assert.Equal(t, 0, insp.QualityScore)
	})

	t.Run("rejects open checkpoints", func(t *testing.T) {
		insp := newSuit(t)
		err := insp.ReopenCheckpoint("measurement", "sup", "", t0)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})

	t.Run("rejects passed checkpoints", func(t *testing.T) {
		insp := newSuit(t)
		submit(t, insp, "measurement", "chest", true)
		submit(t, insp, "measurement", "waist", true)
		submit(t, insp, "measurement", "sleeve", true)
		err := insp.ReopenCheckpoint("measurement", "sup", "", t0)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})

	t.Run("unknown checkpoint", func(t *testing.T) {
		insp := newSuit(t)
		err := insp.ReopenCheckpoint("pressing", "sup", "", t0)
		assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	})
}

func failMeasurement(t *testing.T) *Inspection {
	t.Helper()
	insp := newSuit(t)
	submit(t, insp, "measurement", "chest", false)
	submit(t, insp, "measurement", "waist", true)
	submit(t, insp, "measurement", "sleeve", true)
	return insp
}

func TestEscalateCheckpoint(t *testing.T) {
	insp := failMeasurement(t)
	require.NoError(t, insp.EscalateCheckpoint("measurement", "sup", "fabric defect", t0))

	cp, _ := insp.Checkpoint("measurement")
	assert.Equal(t, CheckpointRequiresAttention, cp.Status)
	assert.Equal(t, "inspector-1", cp.CompletedBy)
	assert.Equal(t, StatusRequiresRework, insp.OverallStatus)
	assert.Equal(t, 0, insp.QualityScore)

	err := insp.EscalateCheckpoint("measurement", "sup", "again", t0)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	require.NoError(t, insp.ReopenCheckpoint("measurement", "sup", "after review", t0))
	cp, _ = insp.Checkpoint("measurement")
	assert.Equal(t, CheckpointPending, cp.Status)
}

func TestCancel(t *testing.T) {
	insp := newSuit(t)
	submit(t, insp, "measurement", "chest", true)

	changed, err := insp.Cancel("coordinator", "order withdrawn", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, insp.Cancelled)
	assert.Equal(t, "order withdrawn", insp.CancelReason)
	cp, _ := insp.Checkpoint("measurement")
	assert.True(t, cp.Criteria[0].IsSet(), "stage data is preserved")

	changed, err = insp.Cancel("coordinator", "again", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "order withdrawn", insp.CancelReason)

	t.Run("completed inspection", func(t *testing.T) {
		insp := newSuit(t)
		insp.Rejected = true
		insp.Recompute(t0)
		_, err := insp.Cancel("coordinator", "", t0)
		assert.Equal(t, errors.ErrCodeAlreadyFinalized, errors.CodeOf(err))
	})
}

func TestReject(t *testing.T) {
	t.Run("from requires_rework", func(t *testing.T) {
		insp := failMeasurement(t)
		require.NoError(t, insp.Reject("sup", "customer declined rework", t0.Add(time.Hour)))
		assert.Equal(t, StatusFailed, insp.OverallStatus)
		assert.True(t, insp.IsTerminal())
		assert.NotNil(t, insp.ActualCompletionAt)

		err := insp.ReopenCheckpoint("measurement", "sup", "", t0)
		assert.Equal(t, errors.ErrCodeAlreadyFinalized, errors.CodeOf(err))
	})

	t.Run("reason required", func(t *testing.T) {
		insp := failMeasurement(t)
		err := insp.Reject("sup", "", t0)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		assert.False(t, insp.Rejected)
	})

	t.Run("not in rework", func(t *testing.T) {
		insp := newSuit(t)
		err := insp.Reject("sup", "why", t0)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})
}

func TestAssignInspector(t *testing.T) {
	insp := newSuit(t)

	changed, err := insp.AssignInspector("inspector-1", false, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = insp.AssignInspector("inspector-1", false, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = insp.AssignInspector("inspector-2", false, t0)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	assert.Equal(t, "inspector-1", insp.AssignedInspectorID)

	changed, err = insp.AssignInspector("inspector-2", true, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "inspector-2", insp.AssignedInspectorID)

	_, err = insp.AssignInspector("", true, t0)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestSetPriority(t *testing.T) {
	insp := newSuit(t)
	changed, err := insp.SetPriority(PriorityHigh, t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = insp.SetPriority(PriorityHigh, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = insp.SetPriority("critical", t0)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestSetEstimatedCompletion(t *testing.T) {
	insp := newSuit(t)
	eta := t0.Add(48 * time.Hour)
	require.NoError(t, insp.SetEstimatedCompletion(&eta, t0))
	assert.Equal(t, eta, *insp.EstimatedCompletionAt)

	early := t0.Add(-time.Hour)
	err := insp.SetEstimatedCompletion(&early, t0)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	require.NoError(t, insp.SetEstimatedCompletion(nil, t0))
	assert.Nil(t, insp.EstimatedCompletionAt)
}

func TestCloneIsDeep(t *testing.T) {
	insp := newSuit(t)
	submit(t, insp, "measurement", "chest", true)
	cp := insp.Clone()

	*cp.Checkpoints[0].Criteria[0].Passed = false
	cp.Checkpoints[0].Criteria[0].Evidence = append(cp.Checkpoints[0].Criteria[0].Evidence, "photo.jpg")
	cp.Checkpoints[1].Status = CheckpointFailed

	assert.True(t, *insp.Checkpoints[0].Criteria[0].Passed)
	assert.Empty(t, insp.Checkpoints[0].Criteria[0].Evidence)
	assert.Equal(t, CheckpointPending, insp.Checkpoints[1].Status)
}
