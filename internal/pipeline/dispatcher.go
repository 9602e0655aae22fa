package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/metrics"
)

// ErrStopped is returned by Enqueue after the dispatcher has been stopped.
var ErrStopped = errors.New("pipeline: dispatcher stopped")

// Handler is the processing chain invoked for every dequeued event.
type Handler func(ctx context.Context, ev codec.CanonicalEvent) error

// Dispatcher decouples event sources from event processing with a bounded
// FIFO queue and a fixed worker pool.
//
// Enqueue blocks when the queue is full, which propagates backpressure
// through the source's message handler all the way to the broker
// connection. Workers pull events in arrival order; there is no ordering
// guarantee across workers.
type Dispatcher struct {
	queue    chan codec.CanonicalEvent
	workers  int
	handler  Handler
	logger   Logger
	metrics  *metrics.Metrics
	interval time.Duration

	busy     atomic.Int64
	done      chan struct{} // closed on Stop: no further intake
	abort     chan struct{} // closed when the drain deadline expires
	stopOnce  sync.Once
	abortOnce sync.Once
	wg       sync.WaitGroup
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// QueueCapacity bounds the inbound queue.
	QueueCapacity int

	// Workers is the number of processing goroutines.
	Workers int

	// MonitorInterval enables periodic depth/busy logging when positive.
	MonitorInterval time.Duration

	// Metrics receives queue and worker gauges. Optional.
	Metrics *metrics.Metrics

	// Logger for lifecycle and monitoring output. Optional.
	Logger Logger
}

// NewDispatcher creates a dispatcher with a fixed queue capacity and
// worker count. Both are immutable for the dispatcher's lifetime.
func NewDispatcher(handler Handler, opts DispatcherOptions) *Dispatcher {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	d := &Dispatcher{
		queue:    make(chan codec.CanonicalEvent, opts.QueueCapacity),
		workers:  opts.Workers,
		handler:  handler,
		logger:   logger,
		metrics:  opts.Metrics,
		interval: opts.MonitorInterval,
		done:     make(chan struct{}),
		abort:    make(chan struct{}),
	}

	if d.metrics != nil {
		d.metrics.QueueCapacity.Set(float64(opts.QueueCapacity))
	}
	return d
}

// Start launches the worker pool and, if configured, the monitor
// goroutine. The context bounds the lifetime of event processing.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	if d.interval > 0 {
		d.wg.Add(1)
		go d.monitor()
	}

	d.logger.Info("dispatcher started",
		"workers", d.workers,
		"queue_capacity", cap(d.queue),
	)
}

// Enqueue adds an event to the inbound queue, blocking while the queue is
// full. It returns the context error if ctx expires while blocked and
// ErrStopped once the dispatcher is shut down.
func (d *Dispatcher) Enqueue(ctx context.Context, ev codec.CanonicalEvent) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	}

	// Stop can win the race with the send above: with both cases ready the
	// send may go through after the workers have already drained and
	// exited, stranding an event. If intake closed meanwhile, pull one
	// event back out and account for it as dropped; an empty queue means a
	// still-draining worker picked it up.
	select {
	case <-d.done:
		select {
		case stranded := <-d.queue:
			d.drop(stranded)
			return ErrStopped
		default:
			return nil
		}
	default:
	}

	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
	}
	return nil
}

// drop records one discarded event in the shutdown accounting.
func (d *Dispatcher) drop(ev codec.CanonicalEvent) {
	if d.metrics != nil {
		d.metrics.EventsDropped.WithLabelValues(ev.SourceID).Inc()
	}
	d.logger.Warn("discarding event during shutdown",
		"hardware_id", ev.HardwareID,
		"source", ev.SourceID,
	)
}

// Depth returns the number of events currently queued.
func (d *Dispatcher) Depth() int {
	return len(d.queue)
}

// worker processes events until the dispatcher stops, then drains what is
// left in the queue unless the drain deadline has expired.
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			d.process(ctx, ev)
		case <-d.done:
			for {
				select {
				case <-d.abort:
					return
				default:
				}
				select {
				case ev := <-d.queue:
					d.process(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, ev codec.CanonicalEvent) {
	d.busy.Add(1)
	defer d.busy.Add(-1)

	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		d.metrics.WorkersBusy.Set(float64(d.busy.Load()))
	}

	status := "ok"
	if err := d.handler(ctx, ev); err != nil {
		status = "error"
		d.logger.Warn("event processing failed",
			"hardware_id", ev.HardwareID,
			"event_type", ev.EventType,
			"source", ev.SourceID,
			"error", err,
		)
	}
	if d.metrics != nil {
		d.metrics.EventsHandled.WithLabelValues(status).Inc()
	}
}

// monitor periodically logs queue depth and busy workers.
func (d *Dispatcher) monitor() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			depth := len(d.queue)
			busy := d.busy.Load()
			if d.metrics != nil {
				d.metrics.QueueDepth.Set(float64(depth))
				d.metrics.WorkersBusy.Set(float64(busy))
			}
			d.logger.Info("dispatcher status",
				"queue_depth", depth,
				"queue_capacity", cap(d.queue),
				"workers_busy", busy,
				"workers_total", d.workers,
			)
		case <-d.done:
			return
		}
	}
}

// Stop closes intake and drains queued events. Workers finish the backlog
// within the context deadline; whatever remains after the deadline is
// discarded and logged.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.done) })

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
	}

	d.abortOnce.Do(func() { close(d.abort) })
	<-finished

	dropped := 0
	for {
		select {
		case ev := <-d.queue:
			dropped++
			if d.metrics != nil {
				d.metrics.EventsDropped.WithLabelValues(ev.SourceID).Inc()
			}
		default:
			if dropped > 0 {
				d.logger.Warn("discarded undrained events on shutdown", "count", dropped)
			}
			return ctx.Err()
		}
	}
}
