package service

import (
	"context"
	"sync"
	"time"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
)

// Notifier delivers an inspection event to downstream consumers.
type Notifier interface {
	PublishInspectionEvent(ctx context.Context, ev *inspection.Event, proj inspection.Projection) error
}

type dispatchItem struct {
	event *inspection.Event
	proj  inspection.Projection
}

// Dispatcher publishes events on a bounded queue drained by a fixed worker
// pool. Enqueue never blocks: when the queue is full the event is dropped and
// counted.
type Dispatcher struct {
	notifier     Notifier
	queue        chan dispatchItem
	workers      int
	drainTimeout time.Duration
	metrics      *metrics.Metrics
	log          *logger.Logger
}

// NewDispatcher creates a dispatcher. Call Run to start the workers.
func NewDispatcher(notifier Notifier, workers, queueSize int, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		notifier:     notifier,
		queue:        make(chan dispatchItem, queueSize),
		workers:      workers,
		drainTimeout: 5 * time.Second,
		metrics:      m,
		log:          log,
	}
}

// Enqueue schedules ev for publication and reports whether it was accepted.
func (d *Dispatcher) Enqueue(ev *inspection.Event, proj inspection.Projection) bool {
	select {
	case d.queue <- dispatchItem{event: ev, proj: proj}:
		d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		d.metrics.DispatchDropped.Inc()
		d.log.Warn().
			Str("inspection_id", ev.InspectionID).
			Str("event_type", string(ev.Type)).
			Msg("Dispatch queue full, event dropped")
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled. Events still
// queued at shutdown are published before Run returns, bounded by a drain
// timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("Event dispatcher started")

	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-d.queue:
					d.deliver(ctx, item)
				}
			}
		}()
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()
	drained := 0
	for {
		select {
		case item := <-d.queue:
			d.deliver(drainCtx, item)
			drained++
		default:
			d.log.Info().Int("drained", drained).Msg("Event dispatcher stopped")
			return nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item dispatchItem) {
	d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	if err := d.notifier.PublishInspectionEvent(ctx, item.event, item.proj); err != nil {
		d.metrics.DispatchFailures.Inc()
		d.log.Warn().Err(err).
			Str("inspection_id", item.event.InspectionID).
			Str("event_type", string(item.event.Type)).
			Msg("Failed to publish inspection event (non-fatal)")
	}
}
