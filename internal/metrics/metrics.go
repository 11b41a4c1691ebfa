// Package metrics exposes Prometheus collectors for the orchestrator, the
// reconciler and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "store_platform"

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	storesCreated      *prometheus.CounterVec
	provisionOutcomes  *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec
	deleteOutcomes     *prometheus.CounterVec
	activeProvisions   prometheus.Gauge
	reconcileRuns      *prometheus.CounterVec
	reconcileDuration  prometheus.Histogram
	reconcileHealed    *prometheus.CounterVec
	orphanNamespaces   prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New creates a recorder with Go runtime and process collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		storesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stores",
			Name:      "created_total",
			Help:      "Stores accepted for provisioning.",
		}, []string{"engine"}),
		provisionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "outcomes_total",
			Help:      "Provisioning workflow outcomes.",
		}, []string{"engine", "outcome"}),
		provisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "duration_seconds",
			Help:      "Time from store creation to a terminal provisioning outcome.",
			Buckets:   []float64{15, 30, 60, 120, 180, 300, 450, 600, 900},
		}, []string{"engine", "outcome"}),
		deleteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deletion",
			Name:      "outcomes_total",
			Help:      "Teardown workflow outcomes.",
		}, []string{"engine", "outcome"}),
		activeProvisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "active",
			Help:      "Provisioning workflows currently holding an admission slot.",
		}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		reconcileHealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "transitions_total",
			Help:      "Status transitions applied by the reconciler.",
		}, []string{"status"}),
		orphanNamespaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "orphan_namespaces",
			Help:      "Managed namespaces without an active store record.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.storesCreated,
		r.provisionOutcomes,
		r.provisionDuration,
		r.deleteOutcomes,
		r.activeProvisions,
		r.reconcileRuns,
		r.reconcileDuration,
		r.reconcileHealed,
		r.orphanNamespaces,
		r.httpRequests,
		r.httpRequestLatency,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// StoreCreated counts an accepted create request.
func (r *Recorder) StoreCreated(engine string) {
	if r == nil {
		return
	}
	r.storesCreated.WithLabelValues(engine).Inc()
}

// ProvisionFinished records a provisioning outcome ("ready", "failed",
// "aborted") and its elapsed time since creation.
func (r *Recorder) ProvisionFinished(engine, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.provisionOutcomes.WithLabelValues(engine, outcome).Inc()
	if elapsed > 0 {
		r.provisionDuration.WithLabelValues(engine, outcome).Observe(elapsed.Seconds())
	}
}

// DeleteFinished records a teardown outcome ("deleted" or "failed").
func (r *Recorder) DeleteFinished(engine, outcome string) {
	if r == nil {
		return
	}
	r.deleteOutcomes.WithLabelValues(engine, outcome).Inc()
}

// SetActiveProvisions publishes the admission controller's active count.
func (r *Recorder) SetActiveProvisions(n int) {
	if r == nil {
		return
	}
	r.activeProvisions.Set(float64(n))
}

// ReconcileFinished records one reconciliation pass.
func (r *Recorder) ReconcileFinished(err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.reconcileRuns.WithLabelValues(result).Inc()
	r.reconcileDuration.Observe(elapsed.Seconds())
}

// ReconcileTransition counts a status change applied by the reconciler.
func (r *Recorder) ReconcileTransition(status string) {
	if r == nil {
		return
	}
	r.reconcileHealed.WithLabelValues(status).Inc()
}

// SetOrphanNamespaces publishes the number of orphaned managed namespaces.
func (r *Recorder) SetOrphanNamespaces(n int) {
	if r == nil {
		return
	}
	r.orphanNamespaces.Set(float64(n))
}

// RecordHTTPRequest records one served request under its route pattern.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	r.httpRequestLatency.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
