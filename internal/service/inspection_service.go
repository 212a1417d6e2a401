package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/repository"
	"github.com/pesio-ai/be-qc-inspections/internal/template"
)

// EventSink receives committed events for asynchronous publication.
type EventSink interface {
	Enqueue(ev *inspection.Event, proj inspection.Projection) bool
}

// Option configures an InspectionService.
type Option func(*InspectionService)

// WithIdempotency enables request-id deduplication of criterion submissions.
func WithIdempotency(g repository.IdempotencyGuard) Option {
	return func(s *InspectionService) { s.idempotency = g }
}

// WithEventSink routes committed status-change events to sink.
func WithEventSink(sink EventSink) Option {
	return func(s *InspectionService) { s.events = sink }
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *InspectionService) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *InspectionService) { s.now = now }
}

// WithIDGenerator overrides inspection and event id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *InspectionService) { s.newID = gen }
}

// InspectionService is the inspection registry. It owns every Inspection and
// applies each mutation as read, clone, compute and conditional write.
type InspectionService struct {
	store       repository.InspectionStore
	templates   template.Library
	idempotency repository.IdempotencyGuard
	roster      RosterSource
	events      EventSink
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	log         *logger.Logger
	now         func() time.Time
	newID       func() string
}

// NewInspectionService creates a new InspectionService.
func NewInspectionService(
	store repository.InspectionStore,
	templates template.Library,
	log *logger.Logger,
	opts ...Option,
) *InspectionService {
	s := &InspectionService{
		store:     store,
		templates: templates,
		tracer:    otel.Tracer("be-qc-inspections/service"),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// ── Instrumentation ──────────────────────────────────────────────────────────

// begin opens a span and returns the function that records the outcome.
func (s *InspectionService) begin(ctx context.Context, op, inspectionID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "InspectionService."+op,
		trace.WithAttributes(attribute.String("inspection_id", inspectionID)))

	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(errors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		s.metrics.Operations.WithLabelValues(op, result).Inc()
		s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

// ── Mutation pipeline ────────────────────────────────────────────────────────

// mutation applies one change to next and returns the audit event describing
// it, or nil when the change was a no-op.
type mutation func(next *inspection.Inspection, now time.Time) (*inspection.Event, error)

func (s *InspectionService) mutate(ctx context.Context, id string, expectedVersion int64, fn mutation) (*inspection.Inspection, *inspection.Event, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return nil, nil, errors.Newf(errors.ErrCodeConflict,
			"inspection %s is at version %d, not %d", id, cur.Version, expectedVersion)
	}

	next := cur.Clone()
	now := s.now()
	ev, err := fn(next, now)
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return cur, nil, nil
	}

	next.Version = cur.Version + 1
	ev.ID = s.newID()
	ev.InspectionID = id
	ev.Version = next.Version
	ev.StatusBefore = cur.OverallStatus
	ev.StatusAfter = next.OverallStatus
	ev.ScoreAfter = next.QualityScore
	ev.OccurredAt = now

	if err := s.store.Update(ctx, next, cur.Version, ev); err != nil {
		return nil, nil, err
	}
	s.afterCommit(ev, next)
	return next, ev, nil
}

// afterCommit records metrics and hands notifiable events to the sink. It
// never fails the operation.
func (s *InspectionService) afterCommit(ev *inspection.Event, insp *inspection.Inspection) {
	if ev.StatusChanged() {
		s.metrics.StatusTransitions.WithLabelValues(string(ev.StatusAfter)).Inc()
		if ev.StatusAfter == inspection.StatusPassed || ev.StatusAfter == inspection.StatusFailed {
			s.metrics.QualityScore.Observe(float64(insp.QualityScore))
		}
	}
	if s.events == nil || !notifiable(ev) {
		return
	}
	s.events.Enqueue(ev, inspection.Project(insp))
}

func notifiable(ev *inspection.Event) bool {
	if ev.StatusChanged() {
		return true
	}
	switch ev.Type {
	case inspection.EventCreated,
		inspection.EventCheckpointEscalated,
		inspection.EventInspectionCancelled,
		inspection.EventInspectorAssigned:
		return true
	}
	return ev.CheckpointStatus.Closed()
}

// ── Creation ─────────────────────────────────────────────────────────────────

// CreateInspection snapshots a template set into a new inspection.
func (s *InspectionService) CreateInspection(ctx context.Context, req *CreateInspectionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "create_inspection", "")
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	set, err := s.templates.Get(ctx, req.TemplateSetID)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, inspection.RosterEntry{
		SubjectID:    req.SubjectID,
		OrderNumber:  req.OrderNumber,
		Role:         req.Role,
		PriorityHint: req.PriorityHint,
	}, set, req.EstimatedCompletionAt, req.ActorID)
}

// create builds, stores and announces one inspection.
func (s *InspectionService) create(ctx context.Context, entry inspection.RosterEntry, set *inspection.TemplateSet, estimate *time.Time, actorID string) (*inspection.Inspection, error) {
	now := s.now()
	insp, err := inspection.New(inspection.NewParams{
		ID:                    s.newID(),
		Entry:                 entry,
		EstimatedCompletionAt: estimate,
	}, set, now)
	if err != nil {
		return nil, err
	}

	ev := &inspection.Event{
		ID:           s.newID(),
		InspectionID: insp.ID,
		Version:      insp.Version,
		Type:         inspection.EventCreated,
		ActorID:      actorID,
		StatusAfter:  insp.OverallStatus,
		Metadata: map[string]any{
			"template_set_id": set.ID,
			"order_number":    insp.OrderNumber,
		},
		OccurredAt: now,
	}
	if err := s.store.Create(ctx, insp, ev); err != nil {
		return nil, err
	}
	s.afterCommit(ev, insp)

	s.log.Info().
		Str("inspection_id", insp.ID).
		Str("order_number", insp.OrderNumber).
		Str("template_set_id", set.ID).
		Int("checkpoints", len(insp.Checkpoints)).
		Msg("Inspection created")

	return insp, nil
}

// ── Inspector actions ────────────────────────────────────────────────────────

// SubmitCriterion records one criterion result and re-derives checkpoint,
// stage and rollup state. A repeated RequestID returns CONFLICT.
func (s *InspectionService) SubmitCriterion(ctx context.Context, req *SubmitCriterionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "submit_criterion", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.RequestID != "" && s.idempotency != nil {
		key := req.InspectionID + ":" + req.RequestID
		ok, resErr := s.idempotency.Reserve(ctx, key)
		if resErr != nil {
			return nil, resErr
		}
		if !ok {
			return nil, errors.Conflict("duplicate request " + req.RequestID)
		}
		defer func() {
			if err != nil {
				if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
					s.log.Warn().Err(relErr).Str("request_id", req.RequestID).Msg("Failed to release request id")
				}
			}
		}()
	}

	insp, ev, err := s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		crit, err := next.SubmitCriterion(inspection.Submission{
			CheckpointID: req.CheckpointID,
			CriterionID:  req.CriterionID,
			Passed:       req.Passed,
			Notes:        req.Notes,
			Evidence:     req.Evidence,
			ActorID:      req.ActorID,
		}, now)
		if err != nil {
			return nil, err
		}
		cp, _ := next.Checkpoint(req.CheckpointID)
		return &inspection.Event{
			Type:             inspection.EventCriterionSubmitted,
			ActorID:          req.ActorID,
			CheckpointID:     req.CheckpointID,
			CriterionID:      req.CriterionID,
			CheckpointStatus: cp.Status,
			Metadata: map[string]any{
				"passed":         *crit.Passed,
				"evidence_count": len(crit.Evidence),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "failed"
	if req.Passed {
		outcome = "passed"
	}
	s.metrics.Submissions.WithLabelValues(outcome).Inc()

	s.log.Info().
		Str("inspection_id", insp.ID).
		Str("checkpoint_id", req.CheckpointID).
		Str("criterion_id", req.CriterionID).
		Bool("passed", req.Passed).
		Str("checkpoint_status", string(ev.CheckpointStatus)).
		Str("overall_status", string(insp.OverallStatus)).
		Int("quality_score", insp.QualityScore).
		Int64("version", insp.Version).
		Msg("Criterion submitted")

	return insp, nil
}

// ── Supervisor actions ───────────────────────────────────────────────────────

// ReopenCheckpoint resets a failed or escalated checkpoint for rework.
func (s *InspectionService) ReopenCheckpoint(ctx context.Context, req *CheckpointActionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "reopen_checkpoint", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, _, err = s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		if err := next.ReopenCheckpoint(req.CheckpointID, req.ActorID, req.Reason, now); err != nil {
			return nil, err
		}
		cp, _ := next.Checkpoint(req.CheckpointID)
		return &inspection.Event{
			Type:             inspection.EventCheckpointReopened,
			ActorID:          req.ActorID,
			CheckpointID:     req.CheckpointID,
			Reason:           req.Reason,
			CheckpointStatus: cp.Status,
			Metadata:         map[string]any{"reopen_count": cp.ReopenCount},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("inspection_id", insp.ID).
		Str("checkpoint_id", req.CheckpointID).
		Str("actor_id", req.ActorID).
		Str("reason", req.Reason).
		Msg("Checkpoint reopened")

	return insp, nil
}

// EscalateCheckpoint moves a failed checkpoint to requires_attention.
func (s *InspectionService) EscalateCheckpoint(ctx context.Context, req *CheckpointActionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "escalate_checkpoint", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, _, err = s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		if err := next.EscalateCheckpoint(req.CheckpointID, req.ActorID, req.Reason, now); err != nil {
			return nil, err
		}
		return &inspection.Event{
			Type:             inspection.EventCheckpointEscalated,
			ActorID:          req.ActorID,
			CheckpointID:     req.CheckpointID,
			Reason:           req.Reason,
			CheckpointStatus: inspection.CheckpointRequiresAttention,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().
		Str("inspection_id", insp.ID).
		Str("checkpoint_id", req.CheckpointID).
		Str("actor_id", req.ActorID).
		Msg("Checkpoint escalated")

	return insp, nil
}

// AssignInspector sets the responsible inspector.
func (s *InspectionService) AssignInspector(ctx context.Context, req *AssignInspectorRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "assign_inspector", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var previous string
	insp, ev, err := s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		previous = next.AssignedInspectorID
		changed, err := next.AssignInspector(req.InspectorID, req.CanOverride, now)
		if err != nil || !changed {
			return nil, err
		}
		return &inspection.Event{
			Type:    inspection.EventInspectorAssigned,
			ActorID: req.ActorID,
			Metadata: map[string]any{
				"inspector_id":          req.InspectorID,
				"previous_inspector_id": previous,
				"override":              previous != "",
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if ev != nil {
		s.log.Info().
			Str("inspection_id", insp.ID).
			Str("inspector_id", req.InspectorID).
			Str("previous_inspector_id", previous).
			Msg("Inspector assigned")
	}
	return insp, nil
}

// CancelInspection cancels an inspection. Cancelling twice returns the
// current state without a new audit entry.
func (s *InspectionService) CancelInspection(ctx context.Context, req *CancelInspectionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "cancel_inspection", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, ev, err := s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		changed, err := next.Cancel(req.ActorID, req.Reason, now)
		if err != nil || !changed {
			return nil, err
		}
		return &inspection.Event{
			Type:    inspection.EventInspectionCancelled,
			ActorID: req.ActorID,
			Reason:  req.Reason,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if ev != nil {
		s.log.Info().
			Str("inspection_id", insp.ID).
			Str("actor_id", req.ActorID).
			Str("reason", req.Reason).
			Msg("Inspection cancelled")
	}
	return insp, nil
}

// RejectInspection fails an inspection whose rework was declined.
func (s *InspectionService) RejectInspection(ctx context.Context, req *RejectInspectionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "reject_inspection", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, _, err = s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		if err := next.Reject(req.ActorID, req.Reason, now); err != nil {
			return nil, err
		}
		return &inspection.Event{
			Type:    inspection.EventInspectionRejected,
			ActorID: req.ActorID,
			Reason:  req.Reason,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("inspection_id", insp.ID).
		Str("actor_id", req.ActorID).
		Int("quality_score", insp.QualityScore).
		Msg("Inspection rejected")

	return insp, nil
}

// ── Planning data ────────────────────────────────────────────────────────────

// SetPriority changes the coordination priority.
func (s *InspectionService) SetPriority(ctx context.Context, req *SetPriorityRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "set_priority", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, _, err = s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		before := next.Priority
		changed, err := next.SetPriority(req.Priority, now)
		if err != nil || !changed {
			return nil, err
		}
		return &inspection.Event{
			Type:     inspection.EventPriorityChanged,
			ActorID:  req.ActorID,
			Metadata: map[string]any{"from": string(before), "to": string(req.Priority)},
		}, nil
	})
	return insp, err
}

// SetEstimatedCompletion records or clears the advisory completion estimate.
func (s *InspectionService) SetEstimatedCompletion(ctx context.Context, req *SetEstimatedCompletionRequest) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "set_estimated_completion", req.InspectionID)
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	insp, _, err = s.mutate(ctx, req.InspectionID, req.ExpectedVersion, func(next *inspection.Inspection, now time.Time) (*inspection.Event, error) {
		if err := next.SetEstimatedCompletion(req.EstimatedCompletionAt, now); err != nil {
			return nil, err
		}
		meta := map[string]any{"estimated_completion_at": nil}
		if req.EstimatedCompletionAt != nil {
			meta["estimated_completion_at"] = req.EstimatedCompletionAt.UTC().Format(time.RFC3339)
		}
		return &inspection.Event{
			Type:     inspection.EventEstimateChanged,
			ActorID:  req.ActorID,
			Metadata: meta,
		}, nil
	})
	return insp, err
}

// ── Queries ──────────────────────────────────────────────────────────────────

// GetInspection returns one inspection.
func (s *InspectionService) GetInspection(ctx context.Context, id string) (insp *inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "get_inspection", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, errors.InvalidInput("id", "inspection id is required")
	}
	return s.store.Get(ctx, id)
}

// GetStatusProjection returns the outbound read model of one inspection.
func (s *InspectionService) GetStatusProjection(ctx context.Context, id string) (*inspection.Projection, error) {
	insp, err := s.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	p := inspection.Project(insp)
	return &p, nil
}

// CurrentCheckpoint returns the checkpoint accepting submissions; ok is false
// once every checkpoint has passed.
func (s *InspectionService) CurrentCheckpoint(ctx context.Context, id string) (cp inspection.Checkpoint, ok bool, err error) {
	insp, err := s.GetInspection(ctx, id)
	if err != nil {
		return inspection.Checkpoint{}, false, err
	}
	cp, ok = insp.CurrentCheckpoint()
	return cp, ok, nil
}

// ListInspections returns a snapshot of matching inspections, most urgent
// first.
func (s *InspectionService) ListInspections(ctx context.Context, filter inspection.Filter) (list []*inspection.Inspection, err error) {
	ctx, done := s.begin(ctx, "list_inspections", "")
	defer func() { done(err) }()

	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	list, err = s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	inspection.SortByPriority(list)
	return list, nil
}

// GetAuditTrail returns the append-only event log of an inspection.
func (s *InspectionService) GetAuditTrail(ctx context.Context, id string) (events []*inspection.Event, err error) {
	ctx, done := s.begin(ctx, "get_audit_trail", id)
	defer func() { done(err) }()

	if id == "" {
		return nil, errors.InvalidInput("id", "inspection id is required")
	}
	return s.store.AuditTrail(ctx, id)
}

// Stats summarises every inspection matching filter, cancelled ones included.
func (s *InspectionService) Stats(ctx context.Context, filter inspection.Filter) (*inspection.Stats, error) {
	filter.IncludeCancelled = true
	list, err := s.ListInspections(ctx, filter)
	if err != nil {
		return nil, err
	}
	stats := inspection.Summarize(list)
	return &stats, nil
}

// ListTemplateSets returns the available template sets.
func (s *InspectionService) ListTemplateSets(ctx context.Context) ([]inspection.TemplateSet, error) {
	return s.templates.List(ctx)
}

func validateFilter(f inspection.Filter) error {
	if f.Stage != "" && !f.Stage.Valid() {
		return errors.InvalidInput("stage", "unknown stage "+string(f.Stage))
	}
	if f.Status != "" && !f.Status.Valid() {
		return errors.InvalidInput("status", "unknown status "+string(f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return errors.InvalidInput("priority", "unknown priority "+string(f.Priority))
	}
	return nil
}
