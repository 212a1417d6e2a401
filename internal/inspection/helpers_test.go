package inspection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func suitTemplates() *TemplateSet {
	return &TemplateSet{
		ID:   "suit-standard",
		Name: "Bespoke suit",
		Checkpoints: []CheckpointTemplate{
			{
				ID: "measurement", Name: "Measurement Verification", Stage: StageMeasurement, Required: true,
				Criteria: []CriterionTemplate{
					{ID: "chest", Name: "Chest within tolerance", Category: CategoryMeasurement},
					{ID: "waist", Name: "Waist within tolerance", Category: CategoryMeasurement},
					{ID: "sleeve", Name: "Sleeve length", Category: CategoryMeasurement},
				},
			},
			{
				ID: "cutting", Name: "Cutting Quality", Stage: StageCutting, Required: true,
				Criteria: []CriterionTemplate{
					{ID: "grain", Name: "Grain alignment", Category: CategoryMaterial},
					{ID: "pattern", Name: "Pattern matching", Category: CategoryVisual},
				},
			},
			{
				ID: "sewing", Name: "Sewing Quality", Stage: StageSewing, Required: true,
				Criteria: []CriterionTemplate{
					{ID: "seams", Name: "Seam strength", Category: CategoryFunctional},
				},
			},
		},
	}
}

func newSuit(t *testing.T) *Inspection {
	t.Helper()
	insp, err := New(NewParams{
		ID:    "insp-1",
		Entry: RosterEntry{SubjectID: "member-7", OrderNumber: "ORD-1001", Role: "groom"},
	}, suitTemplates(), t0)
	require.NoError(t, err)
	return insp
}

func submit(t *testing.T, insp *Inspection, cp, cr string, passed bool) {
	t.Helper()
	_, err := insp.SubmitCriterion(Submission{
		CheckpointID: cp,
		CriterionID:  cr,
		Passed:       passed,
		ActorID:      "inspector-1",
	}, t0.Add(time.Minute))
	require.NoError(t, err)
}

func boolPtr(b bool) *bool { return &b }
