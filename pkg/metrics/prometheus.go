// Package metrics provides Prometheus instrumentation for the cohort
// pipeline.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for one process.
type Manager struct {
	namespace string
	registry  prometheus.Registerer

	// Ingestion
	recordsLoaded    prometheus.Counter
	recordsDropped   prometheus.Counter
	mileageDiscarded prometheus.Counter

	// Identity resolution
	aliasExact      prometheus.Counter
	aliasFuzzy      prometheus.Counter
	aliasUnresolved prometheus.Counter

	// Aggregation
	cohortCount prometheus.Gauge
	metricRows  prometheus.Gauge

	// Publishing
	cohortsPublished *prometheus.CounterVec
	cohortsSkipped   *prometheus.CounterVec

	// Stage timing
	stageDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry replaces the registerer metrics are created on.
func WithRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "kerbstat",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.recordsLoaded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "records_loaded_total",
		Help: "Inspection records loaded from the primary source",
	})
	m.recordsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "records_dropped_total",
		Help: "Records dropped at ingestion for unusable identity or date",
	})
	m.mileageDiscarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "mileage_discarded_total",
		Help: "Odometer readings treated as unknown by the plausibility bound",
	})
	m.aliasExact = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "alias_exact_total",
		Help: "Identity resolutions satisfied by exact alias lookup",
	})
	m.aliasFuzzy = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "alias_fuzzy_total",
		Help: "Identity resolutions accepted by threshold-gated fuzzy match",
	})
	m.aliasUnresolved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "alias_unresolved_total",
		Help: "Identities passed through as new uncurated pairs",
	})
	m.cohortCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "cohorts",
		Help: "Distinct cohorts seen in the current run",
	})
	m.metricRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "metric_rows",
		Help: "Aggregated metric rows produced in the current run",
	})
	m.cohortsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "cohorts_published_total",
		Help: "Cohort documents written, by shard",
	}, []string{"shard"})
	m.cohortsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "cohorts_skipped_total",
		Help: "Cohort documents skipped during assembly, by shard",
	}, []string{"shard"})
	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	return m
}

// Global manager on a custom registry so the default Go collectors do
// not leak into pipeline metrics.
var (
	registry      = prometheus.NewRegistry()      //nolint:gochecknoglobals // singleton registry
	globalManager = NewManager(WithRegistry(registry)) //nolint:gochecknoglobals // singleton manager
)

// Registry returns the registry backing the package-level helpers,
// for exposition or test gathering.
func Registry() *prometheus.Registry { return registry }

// Package-level helpers mirroring the Manager methods.

func RecordLoaded(n int)       { globalManager.recordsLoaded.Add(float64(n)) }
func RecordDropped(n int)      { globalManager.recordsDropped.Add(float64(n)) }
func MileageDiscarded(n int)   { globalManager.mileageDiscarded.Add(float64(n)) }
func AliasExact()              { globalManager.aliasExact.Inc() }
func AliasFuzzy()              { globalManager.aliasFuzzy.Inc() }
func AliasUnresolved()         { globalManager.aliasUnresolved.Inc() }
func SetCohortCount(n int)     { globalManager.cohortCount.Set(float64(n)) }
func SetMetricRows(n int)      { globalManager.metricRows.Set(float64(n)) }
func ObserveStage(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func CohortPublished(shard int) {
	globalManager.cohortsPublished.WithLabelValues(strconv.Itoa(shard)).Inc()
}

func CohortSkipped(shard int) {
	globalManager.cohortsSkipped.WithLabelValues(strconv.Itoa(shard)).Inc()
}
