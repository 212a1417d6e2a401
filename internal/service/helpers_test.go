package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/repository"
	"github.com/pesio-ai/be-qc-inspections/internal/template"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func suitSet() inspection.TemplateSet {
	return inspection.TemplateSet{
		ID:   "suit",
		Name: "Two-piece suit",
		Checkpoints: []inspection.CheckpointTemplate{
			{
				ID: "measurement", Name: "Measurement Verification", Stage: inspection.StageMeasurement, Required: true,
				Criteria: []inspection.CriterionTemplate{
					{ID: "chest", Name: "Chest", Category: inspection.CategoryMeasurement},
					{ID: "waist", Name: "Waist", Category: inspection.CategoryMeasurement},
					{ID: "inseam", Name: "Inseam", Category: inspection.CategoryMeasurement},
				},
			},
			{
				ID: "cutting", Name: "Cutting Quality", Stage: inspection.StageCutting, Required: true,
				Criteria: []inspection.CriterionTemplate{
					{ID: "grain", Name: "Grain", Category: inspection.CategoryMaterial},
					{ID: "pattern", Name: "Pattern", Category: inspection.CategoryVisual},
				},
			},
		},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []*inspection.Event
}

func (r *recordingSink) Enqueue(ev *inspection.Event, _ inspection.Projection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingSink) types() []inspection.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inspection.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc     *InspectionService
	store   *repository.MemoryStore
	sink    *recordingSink
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	var seq atomic.Int64
	f := &fixture{
		store:   repository.NewMemoryStore(),
		sink:    &recordingSink{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	lib := template.NewMemoryLibrary(suitSet(), inspection.TemplateSet{
		ID: "draft",
		Checkpoints: []inspection.CheckpointTemplate{
			{ID: "empty", Name: "Empty", Stage: inspection.StageSewing},
		},
	})
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		WithEventSink(f.sink),
		WithMetrics(f.metrics),
		WithIdempotency(repository.NewMemoryIdempotency(time.Hour)),
	}
	f.svc = NewInspectionService(f.store, lib, logger.Nop(), append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T) *inspection.Inspection {
	t.Helper()
	insp, err := f.svc.CreateInspection(context.Background(), &CreateInspectionRequest{
		SubjectID:     "member-7",
		OrderNumber:   "ORD-1001",
		TemplateSetID: "suit",
		ActorID:       "coordinator",
	})
	require.NoError(t, err)
	return insp
}

func (f *fixture) submit(t *testing.T, id, cp, cr string, passed bool) *inspection.Inspection {
	t.Helper()
	insp, err := f.svc.SubmitCriterion(context.Background(), &SubmitCriterionRequest{
		InspectionID: id,
		CheckpointID: cp,
		CriterionID:  cr,
		Passed:       passed,
		ActorID:      "inspector-1",
	})
	require.NoError(t, err)
	return insp
}
