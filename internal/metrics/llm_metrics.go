package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM counter vectors
var (
	LLMCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Total number of LLM completion calls by provider and outcome",
	}, []string{"provider", "outcome"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "Total number of LLM tokens by provider and direction",
	}, []string{"provider", "direction"}) // input, output

	CircuitBreakerStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state_changes_total",
		Help:      "Total number of LLM circuit breaker state transitions",
	}, []string{"name", "to"})
)

// LLM histogram vectors
var (
	LLMCallLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_call_latency_seconds",
		Help:      "LLM completion call latency in seconds",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})
)

// RecordLLMCall records a completion call.
func RecordLLMCall(provider, outcome string, durationSeconds float64, inputTokens, outputTokens int) {
	LLMCallsTotal.WithLabelValues(provider, outcome).Inc()
	LLMCallLatency.WithLabelValues(provider).Observe(durationSeconds)
	if inputTokens > 0 {
		LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordCircuitBreakerStateChange records a breaker transition.
func RecordCircuitBreakerStateChange(name, to string) {
	CircuitBreakerStateChanges.WithLabelValues(name, to).Inc()
}
