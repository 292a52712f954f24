// Package metrics exposes scheduler and travel-provider counters in
// Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gopti"

// Metrics owns a dedicated registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	solves        *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	droppedEvents *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	workerJobs    *prometheus.CounterVec
}

// New creates a registry with the application collectors plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "solves_total", Help: "Completed solves by scheduler."},
			[]string{"solver"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Solve duration in seconds by scheduler.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"solver"},
		),
		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "dropped_events_total", Help: "Events left off itineraries by reason."},
			[]string{"reason"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "provider_fallbacks_total", Help: "Travel lookups that degraded to straight-line estimates."},
			[]string{"kind", "provider"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "travel_cache_lookups_total", Help: "Travel cache lookups by kind and result."},
			[]string{"kind", "result"},
		),
		workerJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "worker_jobs_total", Help: "Worker jobs by type and outcome."},
			[]string{"job_type", "status"},
		),
	}

	m.registry.MustRegister(
		m.solves,
		m.solveDuration,
		m.droppedEvents,
		m.fallbacks,
		m.cacheLookups,
		m.workerJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSolve records a completed solve.
func (m *Metrics) ObserveSolve(solverName string, elapsed time.Duration) {
	m.solves.WithLabelValues(solverName).Inc()
	m.solveDuration.WithLabelValues(solverName).Observe(elapsed.Seconds())
}

// ObserveDrop records one dropped event.
func (m *Metrics) ObserveDrop(reason string) {
	m.droppedEvents.WithLabelValues(reason).Inc()
}

// CacheLookup records a travel cache hit or miss.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// ProviderFallback records a travel lookup that degraded to straight line.
func (m *Metrics) ProviderFallback(kind, provider string) {
	m.fallbacks.WithLabelValues(kind, provider).Inc()
}

// ObserveJob records a worker job outcome.
func (m *Metrics) ObserveJob(jobType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.workerJobs.WithLabelValues(jobType, status).Inc()
}
