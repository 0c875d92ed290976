// Package metrics exposes Prometheus instrumentation for the matching engine,
// the sweep scheduler and the HTTP API on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "winkmatch"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Collector owns every winkmatch metric.
type Collector struct {
	registry *prometheus.Registry

	matchesCreated  *prometheus.CounterVec
	partialExpiries *prometheus.CounterVec

	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram

	archives *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the winkmatch metrics on registry, or on a fresh registry when
// registry is nil.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	auto := promauto.With(registry)

	return &Collector{
		registry: registry,
		matchesCreated: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "matches_created_total",
			Help:      "Matches created, by entry point.",
		}, []string{"source"}),
		partialExpiries: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "partial_expiries_total",
			Help:      "Matches stored whose signals could not be expired.",
		}, []string{"source"}),
		sweeps: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "sweeps_total",
			Help:      "Batch sweeps run, by result.",
		}, []string{"result"}),
		sweepDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of batch sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		checks: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "checks_total",
			Help:      "Incremental checks run, by result.",
		}, []string{"result"}),
		checkDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "check_duration_seconds",
			Help:      "Wall time of incremental checks.",
			Buckets:   prometheus.DefBuckets,
		}),
		archives: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_reports_archived_total",
			Help:      "Sweep report uploads, by result.",
		}, []string{"result"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the Prometheus exposition format for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// MatchCreated counts a new match from source.
func (c *Collector) MatchCreated(source string) {
	c.matchesCreated.WithLabelValues(source).Inc()
}

// PartialExpiry counts a match whose signals stayed active.
func (c *Collector) PartialExpiry(source string) {
	c.partialExpiries.WithLabelValues(source).Inc()
}

// SweepFinished records one batch sweep.
func (c *Collector) SweepFinished(_ int, d time.Duration, err error) {
	c.sweeps.WithLabelValues(result(err)).Inc()
	c.sweepDuration.Observe(d.Seconds())
}

// CheckFinished records one incremental check.
func (c *Collector) CheckFinished(_ int, d time.Duration, err error) {
	c.checks.WithLabelValues(result(err)).Inc()
	c.checkDuration.Observe(d.Seconds())
}

// ReportArchived records one sweep report upload.
func (c *Collector) ReportArchived(err error) {
	c.archives.WithLabelValues(result(err)).Inc()
}

// ObserveHTTPRequest records a served request.
func (c *Collector) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(path).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
