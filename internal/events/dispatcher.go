package events

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/metrics"
)

// Options tunes a Dispatcher.
type Options struct {
	QueueSize  int
	MaxRetries int
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
	// DeliverTimeout bounds a single delivery attempt.
	DeliverTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = 5 * time.Second
	}
	return o
}

// Dispatcher delivers events to a Sink on a background goroutine. Publish
// never blocks: when the queue is full the event is dropped and counted.
type Dispatcher struct {
	sink    Sink
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher. Call Run to start delivery.
func NewDispatcher(sink Sink, opts Options, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		sink:    sink,
		opts:    opts,
		log:     log,
		metrics: m,
		queue:   make(chan Event, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Publish enqueues events for delivery.
func (d *Dispatcher) Publish(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range events {
		if d.closed {
			d.drop(e, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- e:
		default:
			d.drop(e, "queue full")
		}
	}
}

func (d *Dispatcher) drop(e Event, reason string) {
	d.metrics.IncEventsDropped()
	d.log.Warn("Dropping domain event", map[string]interface{}{
		"event_id":   e.ID,
		"event_type": string(e.Type),
		"reason":     reason,
	})
}

// Run delivers queued events until Close is called and the queue drains,
// or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.InitialBackoff
	policy.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.DeliverTimeout)
		defer cancel()
		return d.sink.Deliver(attemptCtx, e)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxRetries)), ctx))
	if err != nil {
		d.metrics.IncEventsPublished(metrics.OutcomeError)
		d.log.Error("Failed to deliver domain event", err, map[string]interface{}{
			"event_id":   e.ID,
			"event_type": string(e.Type),
			"attempts":   attempts,
		})
		return
	}
	d.metrics.IncEventsPublished(metrics.OutcomeOK)
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
