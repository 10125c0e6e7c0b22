package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics holds Prometheus metrics for the workflow engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	Draws              prometheus.Counter
	DrawPoolSize       prometheus.Histogram
	DrawResets         prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	EventsDropped      prometheus.Counter
	SLABreaches        *prometheus.GaugeVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landflow_transitions_total",
			Help: "Workflow operations by entity, action and outcome",
		}, []string{"entity", "action", "outcome"}),
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landflow_transition_duration_seconds",
			Help:    "Time spent in a workflow operation including its transaction",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity", "action"}),
		Draws: factory.NewCounter(prometheus.CounterOpts{
			Name: "landflow_draws_total",
			Help: "Total number of e-draws conducted",
		}),
		DrawPoolSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "landflow_draw_pool_size",
			Help:    "Number of verified applications entering each e-draw",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		DrawResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "landflow_draw_resets_total",
			Help: "Total number of administrative draw resets",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landflow_events_published_total",
			Help: "Domain events handed to the sink by outcome",
		}, []string{"outcome"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "landflow_events_dropped_total",
			Help: "Domain events dropped because the dispatch queue was full",
		}),
		SLABreaches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "landflow_sla_breaches",
			Help: "Breached deadlines found by the last overdue report, by kind",
		}, []string{"kind"}),
	}
}

// ObserveTransition records one workflow operation.
func (m *Metrics) ObserveTransition(entity, action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(entity, action).Observe(elapsed.Seconds())
}

// ObserveDraw records a conducted draw over a pool of n applications.
func (m *Metrics) ObserveDraw(n int) {
	if m == nil {
		return
	}
	m.Draws.Inc()
	m.DrawPoolSize.Observe(float64(n))
}

// IncDrawResets increments the draw reset counter.
func (m *Metrics) IncDrawResets() {
	if m == nil {
		return
	}
	m.DrawResets.Inc()
}

// IncEventsPublished counts an event delivery attempt outcome.
func (m *Metrics) IncEventsPublished(outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(outcome).Inc()
}

// IncEventsDropped counts an event that never reached the sink.
func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// SetSLABreaches sets the breach gauge for one deadline kind.
func (m *Metrics) SetSLABreaches(kind string, n int) {
	if m == nil {
		return
	}
	m.SLABreaches.WithLabelValues(kind).Set(float64(n))
}
