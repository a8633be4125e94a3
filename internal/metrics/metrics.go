// Package metrics provides the centralized Prometheus metrics registry for the picklist pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

const namespace = "frc_picklist"

// Counter metrics
var (
	GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Total number of picklist generations by status and mode",
	}, []string{"status", "mode"})
	AutoAddedTeamsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_added_teams_total",
		Help:      "Total number of teams filled with a fallback score",
	})
	ChunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_chunks_total",
		Help:      "Total number of batch chunks processed by status",
	}, []string{"status"})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Total number of result cache lookups by result",
	}, []string{"result"}) // hit, miss, wait
	InvariantViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invariant_violations_total",
		Help:      "Total number of reconciliation invariant violations",
	})
)

// Gauge metrics
var (
	InFlightGenerations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight_generations",
		Help:      "Number of picklist generations currently running",
	})
	CachedResults = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_results",
		Help:      "Number of results held by the cache as of the last stats sweep",
	}, []string{"backend"})
	CacheFlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_flushes_total",
		Help:      "Total number of scheduled cache flushes by status",
	}, []string{"status"})
)

// Histogram metrics
var (
	GenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Duration of picklist generations in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"mode"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Generation metrics
		registry.MustRegister(GenerationsTotal)
		registry.MustRegister(AutoAddedTeamsTotal)
		registry.MustRegister(ChunksTotal)
		registry.MustRegister(CacheLookupsTotal)
		registry.MustRegister(InvariantViolationsTotal)
		registry.MustRegister(InFlightGenerations)
		registry.MustRegister(GenerationDuration)
		registry.MustRegister(CachedResults)
		registry.MustRegister(CacheFlushesTotal)

		// Parser metrics
		registry.MustRegister(ParseAttemptsTotal)
		registry.MustRegister(LoopDetectionsTotal)
		registry.MustRegister(UncitedReasoningTotal)

		// LLM metrics
		registry.MustRegister(LLMCallsTotal)
		registry.MustRegister(LLMCallLatency)
		registry.MustRegister(LLMTokensTotal)
		registry.MustRegister(CircuitBreakerStateChanges)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordGeneration records a finished generation.
func RecordGeneration(status, mode string, durationSeconds float64, autoAdded int) {
	GenerationsTotal.WithLabelValues(status, mode).Inc()
	GenerationDuration.WithLabelValues(mode).Observe(durationSeconds)
	AutoAddedTeamsTotal.Add(float64(autoAdded))
}

// RecordChunk records a processed batch chunk.
func RecordChunk(status string) {
	ChunksTotal.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a result cache lookup.
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordInvariantViolation records a reconciliation invariant violation.
func RecordInvariantViolation() {
	InvariantViolationsTotal.Inc()
}

// GenerationStarted increments the in-flight gauge.
func GenerationStarted() {
	InFlightGenerations.Inc()
}

// GenerationFinished decrements the in-flight gauge.
func GenerationFinished() {
	InFlightGenerations.Dec()
}

// RecordCacheStats records the cache size seen by a stats sweep.
func RecordCacheStats(backend string, entries int) {
	CachedResults.WithLabelValues(backend).Set(float64(entries))
}

// RecordCacheFlush records a scheduled flush.
func RecordCacheFlush(status string) {
	CacheFlushesTotal.WithLabelValues(status).Inc()
}
