package tasks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the task runtime's Prometheus instrumentation. It is
// explicit, constructed state (spec.md §9's replacement for ambient global
// singletons) rather than package-level vars registered via init; a nil
// *Metrics is tolerated everywhere it's used, so instrumentation is
// strictly opt-in.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	queueLag  *prometheus.GaugeVec
}

// Outcome labels a processed attempt for the ucrs_tasks_processed_total
// counter.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRetry       Outcome = "retry"
	OutcomeDeadLetter  Outcome = "dead_letter"
)

// NewMetrics builds and registers a Metrics against registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ucrs_tasks_processed_total",
			Help: "Task attempts processed by the worker pool, by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ucrs_tasks_duration_seconds",
			Help:    "Wall-clock time spent running a job handler, by job kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queueLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ucrs_tasks_dead_letter_depth",
			Help: "Current depth of the dead-letter stream.",
		}, []string{}),
	}
	registry.MustRegister(m.processed, m.duration, m.queueLag)
	return m
}

func (m *Metrics) observe(kind Kind, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(string(kind), string(outcome)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) setDeadLetterDepth(depth float64) {
	if m == nil {
		return
	}
	m.queueLag.WithLabelValues().Set(depth)
}
