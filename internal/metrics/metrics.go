// Package metrics provides Prometheus metrics for the report worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the report processing metrics.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	reportsTotal    *prometheus.CounterVec
	buildDuration   prometheus.Histogram
	castsEmitted    prometheus.Counter
	buffEvents      prometheus.Counter
	pendingStarts   prometheus.Counter
	uploadBytes     prometheus.Histogram
	viewRefreshFail prometheus.Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the buckets for the build duration histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithRegistry registers metrics on registry instead of a fresh private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates and registers all metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "moxie",
		buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.reportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "reports_total",
		Help:      "Report jobs by outcome (ok, decompress, decode, empty_encounter, internal).",
	}, []string{"outcome"})
	m.buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "report_duration_seconds",
		Help:      "Time spent processing one report job end to end.",
		Buckets:   m.buckets,
	})
	m.castsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "casts_emitted_total",
		Help:      "Skill casts written across all reports.",
	})
	m.buffEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "buff_events_total",
		Help:      "Buff apply/remove events written across all reports.",
	})
	m.pendingStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "unresolved_cast_starts_total",
		Help:      "Cast starts that never saw a matching end.",
	})
	m.uploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "upload_size_bytes",
		Help:      "Size of uploaded logs before decompression.",
		Buckets:   prometheus.ExponentialBuckets(64*1024, 2, 10),
	})
	m.viewRefreshFail = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "view_refresh_failures_total",
		Help:      "Materialized view refresh attempts that failed.",
	})

	m.registry.MustRegister(
		m.reportsTotal,
		m.buildDuration,
		m.castsEmitted,
		m.buffEvents,
		m.pendingStarts,
		m.uploadBytes,
		m.viewRefreshFail,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReport records the outcome of one job.
func (m *Manager) ObserveReport(outcome string, elapsed time.Duration) {
	m.reportsTotal.WithLabelValues(outcome).Inc()
	m.buildDuration.Observe(elapsed.Seconds())
}

// ObserveUpload records the raw size of an upload.
func (m *Manager) ObserveUpload(size int) {
	m.uploadBytes.Observe(float64(size))
}

// AddTimeline records what a successful report produced.
func (m *Manager) AddTimeline(casts, buffEvents, pending int) {
	m.castsEmitted.Add(float64(casts))
	m.buffEvents.Add(float64(buffEvents))
	m.pendingStarts.Add(float64(pending))
}

// IncViewRefreshFailure counts a failed view refresh.
func (m *Manager) IncViewRefreshFailure() {
	m.viewRefreshFail.Inc()
}
