// Package metrics records pipeline activity in a private Prometheus
// registry served at /metrics in HTTP mode.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audience_audit"

// Recorder implements pipeline.Metrics on top of Prometheus collectors.
type Recorder struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	approvals   *prometheus.CounterVec
	batchItems  *prometheus.CounterVec
}

// New creates a Recorder with its own registry. Process and Go runtime
// collectors are included.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation calls by step and outcome (success or error).",
		}, []string{"step", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a generation call including retries.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"step"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Transient generation failures that were retried.",
		}, []string{"step"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Drafts promoted to approved artifacts.",
		}, []string{"step"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items by step and outcome (generated, skipped, failed).",
		}, []string{"step", "outcome"}),
	}
	r.registry.MustRegister(
		r.generations, r.latency, r.retries, r.approvals, r.batchItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveGeneration records one generation call.
func (r *Recorder) ObserveGeneration(step, outcome string, d time.Duration) {
	r.generations.WithLabelValues(step, outcome).Inc()
	r.latency.WithLabelValues(step).Observe(d.Seconds())
}

// ObserveRetry records one retried attempt.
func (r *Recorder) ObserveRetry(step string) {
	r.retries.WithLabelValues(step).Inc()
}

// ObserveApproval records one approval.
func (r *Recorder) ObserveApproval(step string) {
	r.approvals.WithLabelValues(step).Inc()
}

// ObserveBatchItem records one batch item outcome.
func (r *Recorder) ObserveBatchItem(step, outcome string) {
	r.batchItems.WithLabelValues(step, outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
