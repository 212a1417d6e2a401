package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/database"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// PostgresStore keeps inspections in postgres. Checkpoints are stored as a
// JSONB document next to the scalar columns used for filtering.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const inspectionColumns = `
	id, subject_id, order_number, role, template_set_id,
	checkpoints, current_stage_index,
	overall_status, priority, assigned_inspector_id,
	started_at, estimated_completion_at, actual_completion_at,
	quality_score, cancelled, cancelled_at, cancelled_by, cancel_reason,
	rejected, reject_reason, version, updated_at`

// Create inserts the inspection and its creation event in one transaction.
func (s *PostgresStore) Create(ctx context.Context, insp *inspection.Inspection, ev *inspection.Event) error {
	checkpointsJSON, err := json.Marshal(insp.Checkpoints)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal checkpoints")
	}

	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO qc_inspections
			    (id, subject_id, order_number, role, template_set_id,
			     checkpoints, current_stage_index, current_stage,
			     overall_status, priority, priority_rank, assigned_inspector_id,
			     started_at, estimated_completion_at, actual_completion_at,
			     quality_score, cancelled, cancelled_at, cancelled_by, cancel_reason,
			     rejected, reject_reason, version, updated_at)
			VALUES ($1, $2, $3, $4, $5,
			        $6, $7, $8,
			        $9, $10, $11, $12,
			        $13, $14, $15,
			        $16, $17, $18, $19, $20,
			        $21, $22, $23, $24)
			ON CONFLICT (id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, query,
			insp.ID, insp.SubjectID, insp.OrderNumber, insp.Role, insp.TemplateSetID,
			checkpointsJSON, insp.CurrentStageIndex, string(insp.CurrentStage()),
			insp.OverallStatus, insp.Priority, insp.Priority.Rank(), insp.AssignedInspectorID,
			insp.StartedAt, insp.EstimatedCompletionAt, insp.ActualCompletionAt,
			insp.QualityScore, insp.Cancelled, insp.CancelledAt, insp.CancelledBy, insp.CancelReason,
			insp.Rejected, insp.RejectReason, insp.Version, insp.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create inspection")
		}
		if tag.RowsAffected() == 0 {
			return errors.Conflict("inspection " + insp.ID + " already exists")
		}
		return appendEvent(ctx, tx, ev)
	})
}

// Get retrieves an inspection by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*inspection.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM qc_inspections WHERE id = $1`

	insp, err := scanInspection(s.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("inspection", id)
	}
	return insp, err
}

// Update writes insp only if the stored version still equals expectedVersion,
// appending ev in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, insp *inspection.Inspection, expectedVersion int64, ev *inspection.Event) error {
	checkpointsJSON, err := json.Marshal(insp.Checkpoints)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal checkpoints")
	}

	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE qc_inspections SET
			    checkpoints = $3,
			    current_stage_index = $4,
			    current_stage = $5,
			    overall_status = $6,
			    priority = $7,
			    priority_rank = $8,
			    assigned_inspector_id = $9,
			    estimated_completion_at = $10,
			    actual_completion_at = $11,
			    quality_score = $12,
			    cancelled = $13,
			    cancelled_at = $14,
			    cancelled_by = $15,
			    cancel_reason = $16,
			    rejected = $17,
			    reject_reason = $18,
			    version = $19,
			    updated_at = $20
			WHERE id = $1 AND version = $2
		`
		tag, err := tx.Exec(ctx, query,
			insp.ID, expectedVersion,
			checkpointsJSON, insp.CurrentStageIndex, string(insp.CurrentStage()),
			insp.OverallStatus, insp.Priority, insp.Priority.Rank(), insp.AssignedInspectorID,
			insp.EstimatedCompletionAt, insp.ActualCompletionAt,
			insp.QualityScore, insp.Cancelled, insp.CancelledAt, insp.CancelledBy, insp.CancelReason,
			insp.Rejected, insp.RejectReason, insp.Version, insp.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update inspection")
		}
		if tag.RowsAffected() == 0 {
			var actual int64
			err := tx.QueryRow(ctx, `SELECT version FROM qc_inspections WHERE id = $1`, insp.ID).Scan(&actual)
			if err == pgx.ErrNoRows {
				return errors.NotFound("inspection", insp.ID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to read inspection version")
			}
			return versionConflict(insp.ID, expectedVersion, actual)
		}
		return appendEvent(ctx, tx, ev)
	})
}

// List returns inspections matching filter, most urgent first.
func (s *PostgresStore) List(ctx context.Context, filter inspection.Filter) ([]*inspection.Inspection, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.IncludeCancelled {
		where = append(where, "cancelled = FALSE")
	}
	if filter.Stage != "" {
		add("current_stage = $%d", string(filter.Stage))
	}
	if filter.Status != "" {
		add("overall_status = $%d", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.InspectorID != "" {
		add("assigned_inspector_id = $%d", filter.InspectorID)
	}

	query := `SELECT ` + inspectionColumns + ` FROM qc_inspections`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority_rank DESC, started_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list inspections")
	}
	defer rows.Close()

	var out []*inspection.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate inspections")
	}
	return out, nil
}

// AuditTrail returns the full audit trail of an inspection ordered by version.
func (s *PostgresStore) AuditTrail(ctx context.Context, inspectionID string) ([]*inspection.Event, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM qc_inspections WHERE id = $1)`, inspectionID).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to check inspection")
	}
	if !exists {
		return nil, errors.NotFound("inspection", inspectionID)
	}

	query := `
		SELECT id, inspection_id, version, event_type, actor_id,
		       checkpoint_id, criterion_id, reason,
		       status_before, status_after, checkpoint_status, score_after,
		       metadata, occurred_at
		FROM qc_inspection_audit_log
		WHERE inspection_id = $1
		ORDER BY version ASC
	`
	rows, err := s.db.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	events := []*inspection.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate audit log")
	}
	return events, nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, ev *inspection.Event) error {
	if ev == nil {
		return nil
	}
	var metadataJSON []byte
	if ev.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO qc_inspection_audit_log
		    (id, inspection_id, version, event_type, actor_id,
		     checkpoint_id, criterion_id, reason,
		     status_before, status_after, checkpoint_status, score_after,
		     metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8,
		        $9, $10, $11, $12,
		        $13, $14)
	`
	_, err := tx.Exec(ctx, query,
		ev.ID, ev.InspectionID, ev.Version, ev.Type, ev.ActorID,
		ev.CheckpointID, ev.CriterionID, ev.Reason,
		ev.StatusBefore, ev.StatusAfter, ev.CheckpointStatus, ev.ScoreAfter,
		metadataJSON, ev.OccurredAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInspection(sc rowScanner) (*inspection.Inspection, error) {
	insp := &inspection.Inspection{}
	var checkpointsJSON []byte

	err := sc.Scan(
		&insp.ID,
		&insp.SubjectID,
		&insp.OrderNumber,
		&insp.Role,
		&insp.TemplateSetID,
		&checkpointsJSON,
		&insp.CurrentStageIndex,
		&insp.OverallStatus,
		&insp.Priority,
		&insp.AssignedInspectorID,
		&insp.StartedAt,
		&insp.EstimatedCompletionAt,
		&insp.ActualCompletionAt,
		&insp.QualityScore,
		&insp.Cancelled,
		&insp.CancelledAt,
		&insp.CancelledBy,
		&insp.CancelReason,
		&insp.Rejected,
		&insp.RejectReason,
		&insp.Version,
		&insp.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan inspection")
	}

	if err := json.Unmarshal(checkpointsJSON, &insp.Checkpoints); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal checkpoints")
	}
	return insp, nil
}

func scanEvent(sc rowScanner) (*inspection.Event, error) {
	ev := &inspection.Event{}
	var metadataJSON []byte

	err := sc.Scan(
		&ev.ID,
		&ev.InspectionID,
		&ev.Version,
		&ev.Type,
		&ev.ActorID,
		&ev.CheckpointID,
		&ev.CriterionID,
		&ev.Reason,
		&ev.StatusBefore,
		&ev.StatusAfter,
		&ev.CheckpointStatus,
		&ev.ScoreAfter,
		&metadataJSON,
		&ev.OccurredAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &ev.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return ev, nil
}
