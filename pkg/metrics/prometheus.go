package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics. A nil *PrometheusMetrics is
// valid and records nothing.
type PrometheusMetrics struct {
	// Generation metrics
	GenerationsTotal   prometheus.Counter
	GenerationDuration prometheus.Histogram
	AcceptanceRate     prometheus.Gauge
	Temperature        prometheus.Gauge
	BestFitness        prometheus.Gauge
	ProposalsTotal     *prometheus.CounterVec

	// Oracle metrics
	OracleCallsTotal *prometheus.CounterVec
	OracleItemsTotal *prometheus.CounterVec
	OracleLatency    *prometheus.HistogramVec

	// Residue sampling
	ResidueFallbackTotal prometheus.Counter

	// Token metrics
	TokensTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Retry metrics
	RetriesTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitTransitionsTotal *prometheus.CounterVec

	// Snapshot metrics
	SnapshotFailuresTotal prometheus.Counter
}

// NewPrometheusMetrics registers all metrics with reg. A nil reg means the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		GenerationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bindopt_generations_total",
			Help: "Total number of completed generations",
		}),
		GenerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bindopt_generation_duration_seconds",
			Help:    "Wall time of one generation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		AcceptanceRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "bindopt_acceptance_rate",
			Help: "Acceptance rate of the last generation",
		}),
		Temperature: f.NewGauge(prometheus.GaugeOpts{
			Name: "bindopt_temperature",
			Help: "Selector temperature after the last step",
		}),
		BestFitness: f.NewGauge(prometheus.GaugeOpts{
			Name: "bindopt_best_fitness",
			Help: "Best fitness in the population after the last generation",
		}),
		ProposalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_proposals_total",
			Help: "Total number of proposals by outcome",
		}, []string{"outcome"}),

		OracleCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_oracle_calls_total",
			Help: "Total number of oracle calls",
		}, []string{"oracle", "status"}),
		OracleItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_oracle_items_total",
			Help: "Total number of items sent to oracles",
		}, []string{"oracle"}),
		OracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bindopt_oracle_latency_seconds",
			Help:    "Oracle call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"oracle"}),

		ResidueFallbackTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bindopt_residue_fallback_total",
			Help: "Residue draws that fell back to a uniform distribution",
		}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_embedding_tokens_total",
			Help: "Total number of tokens sent to embedding endpoints",
		}, []string{"model"}),

		CacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_cache_hits_total",
			Help: "Total number of cache hits",
		}, []string{"cache"}),
		CacheMissesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_cache_misses_total",
			Help: "Total number of cache misses",
		}, []string{"cache"}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_retries_total",
			Help: "Total number of oracle retries",
		}, []string{"oracle", "reason"}),

		CircuitTransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bindopt_circuit_transitions_total",
			Help: "Circuit breaker state transitions by target state",
		}, []string{"breaker", "state"}),

		SnapshotFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bindopt_snapshot_failures_total",
			Help: "Snapshot writes that failed",
		}),
	}
}

// RecordGeneration records the outcome of one generation
func (m *PrometheusMetrics) RecordGeneration(acceptanceRate, temperature, best float64, accepted, rejected int, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.Inc()
	m.GenerationDuration.Observe(duration.Seconds())
	m.AcceptanceRate.Set(acceptanceRate)
	m.Temperature.Set(temperature)
	m.BestFitness.Set(best)
	m.ProposalsTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.ProposalsTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordOracleCall records a call metric
func (m *PrometheusMetrics) RecordOracleCall(oracle, status string, items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.OracleCallsTotal.WithLabelValues(oracle, status).Inc()
	m.OracleItemsTotal.WithLabelValues(oracle).Add(float64(items))
	m.OracleLatency.WithLabelValues(oracle).Observe(duration.Seconds())
}

// RecordResidueFallback records a degenerate residue distribution
func (m *PrometheusMetrics) RecordResidueFallback() {
	if m == nil {
		return
	}
	m.ResidueFallbackTotal.Inc()
}

// RecordTokens records embedding token usage
func (m *PrometheusMetrics) RecordTokens(model string, tokens int) {
	if m == nil || tokens <= 0 {
		return
	}
	m.TokensTotal.WithLabelValues(model).Add(float64(tokens))
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(oracle, reason string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(oracle, reason).Inc()
}

// RecordCircuitTransition records a circuit breaker entering state
func (m *PrometheusMetrics) RecordCircuitTransition(breaker, state string) {
	if m == nil {
		return
	}
	m.CircuitTransitionsTotal.WithLabelValues(breaker, state).Inc()
}

// RecordSnapshotFailure records a failed snapshot write
func (m *PrometheusMetrics) RecordSnapshotFailure() {
	if m == nil {
		return
	}
	m.SnapshotFailuresTotal.Inc()
}
