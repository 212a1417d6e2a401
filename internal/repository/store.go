package repository

import (
	"context"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
)

// InspectionStore persists inspections and their append-only audit trail.
//
// Update is a conditional write: it succeeds only when the stored version
// equals expectedVersion, and it appends ev in the same atomic step. A
// version mismatch returns a CONFLICT error and leaves both the inspection
// and the audit trail unchanged.
type InspectionStore interface {
	Create(ctx context.Context, insp *inspection.Inspection, ev *inspection.Event) error
	Get(ctx context.Context, id string) (*inspection.Inspection, error)
	Update(ctx context.Context, insp *inspection.Inspection, expectedVersion int64, ev *inspection.Event) error
	List(ctx context.Context, filter inspection.Filter) ([]*inspection.Inspection, error)
	AuditTrail(ctx context.Context, inspectionID string) ([]*inspection.Event, error)
}
