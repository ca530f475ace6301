package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Resolution metrics
	ResolutionsTotal    *prometheus.CounterVec
	ResolutionDuration  *prometheus.HistogramVec
	AdminOverridesTotal *prometheus.CounterVec

	// Resolution cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Consistency engine metrics
	ReconciliationsTotal   *prometheus.CounterVec
	ReconciliationAffected prometheus.Histogram
	RevocationsTotal       *prometheus.CounterVec

	// Retry queue metrics
	QueueDepth       prometheus.Gauge
	QueueSweepsTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constel_resolutions_total",
				Help: "Total number of effective permission resolutions",
			},
			[]string{"module", "scope", "outcome"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "constel_resolution_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module", "scope"},
		),
		AdminOverridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constel_admin_overrides_total",
				Help: "Resolutions short-circuited by admin override",
			},
			[]string{"module"},
		),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "constel_resolution_cache_hits_total",
			Help: "Resolution cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "constel_resolution_cache_misses_total",
			Help: "Resolution cache misses",
		}),

		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constel_reconciliations_total",
				Help: "Membership reconciliation runs",
			},
			[]string{"trigger", "outcome"},
		),
		ReconciliationAffected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "constel_reconciliation_affected_users",
			Help:    "Users revoked per reconciliation batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		RevocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "constel_revocations_total",
				Help: "Project connection revocations",
			},
			[]string{"outcome"},
		),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "constel_revocation_queue_depth",
			Help: "Pending entries on the revocation retry queue",
		}),
		QueueSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "constel_revocation_queue_sweeps_total",
			Help: "Revocation queue sweep runs",
		}),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "constel_db_connections_active",
			Help: "Active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "constel_db_connections_idle",
			Help: "Idle database connections",
		}),
	}

	registry.MustRegister(
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.AdminOverridesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReconciliationsTotal,
		m.ReconciliationAffected,
		m.RevocationsTotal,
		m.QueueDepth,
		m.QueueSweepsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
