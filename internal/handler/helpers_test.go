package handler

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/repository"
	"github.com/pesio-ai/be-qc-inspections/internal/service"
	"github.com/pesio-ai/be-qc-inspections/internal/template"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func jacketSet() inspection.TemplateSet {
	return inspection.TemplateSet{
		ID:   "jacket",
		Name: "Jacket",
		Checkpoints: []inspection.CheckpointTemplate{
			{
				ID: "measurement", Name: "Measurement", Stage: inspection.StageMeasurement, Required: true,
				Criteria: []inspection.CriterionTemplate{
					{ID: "chest", Name: "Chest", Category: inspection.CategoryMeasurement},
				},
			},
			{
				ID: "sewing", Name: "Sewing", Stage: inspection.StageSewing, Required: true,
				Criteria: []inspection.CriterionTemplate{
					{ID: "seams", Name: "Seams", Category: inspection.CategoryVisual},
				},
			},
		},
	}
}

func newTestService(t *testing.T) *service.InspectionService {
	t.Helper()
	var seq atomic.Int64
	return service.NewInspectionService(
		repository.NewMemoryStore(),
		template.NewMemoryLibrary(jacketSet()),
		logger.Nop(),
		service.WithClock(func() time.Time { return testNow }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())),
		service.WithIdempotency(repository.NewMemoryIdempotency(time.Hour)),
	)
}
