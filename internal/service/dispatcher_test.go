package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
)

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string
	fail      bool
}

func (n *fakeNotifier) PublishInspectionEvent(_ context.Context, ev *inspection.Event, _ inspection.Projection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return stderrors.New("broker unavailable")
	}
	n.delivered = append(n.delivered, ev.ID)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delivered)
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	n := &fakeNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(n, 2, 16, m, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := range 5 {
		assert.True(t, d.Enqueue(&inspection.Event{ID: string(rune('a' + i))}, inspection.Projection{}))
	}
	assert.Eventually(t, func() bool { return n.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	n := &fakeNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(n, 1, 2, m, logger.Nop())

	assert.True(t, d.Enqueue(&inspection.Event{ID: "1"}, inspection.Projection{}))
	assert.True(t, d.Enqueue(&inspection.Event{ID: "2"}, inspection.Projection{}))
	assert.False(t, d.Enqueue(&inspection.Event{ID: "3"}, inspection.Projection{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchDropped))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 2, n.count(), "queued events are drained on shutdown")
}

func TestDispatcherCountsFailures(t *testing.T) {
	n := &fakeNotifier{fail: true}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(n, 1, 4, m, logger.Nop())

	d.Enqueue(&inspection.Event{ID: "1"}, inspection.Projection{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchFailures))
}
