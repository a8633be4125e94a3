package metrics

import "github.com/prometheus/client_golang/prometheus"

// Parser counter vectors
var (
	ParseAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_attempts_total",
		Help:      "Total number of response parse attempts by stage and outcome",
	}, []string{"stage", "outcome"}) // outcome: success, next, skipped

	LoopDetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_detections_total",
		Help:      "Total number of repetition loops detected in model output",
	}, []string{"kind"}) // cycle, duplicates

	UncitedReasoningTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uncited_reasoning_total",
		Help:      "Total number of ranking entries whose reasoning cites no metric value",
	})
)

// RecordParseAttempt records one parser stage outcome.
func RecordParseAttempt(stage, outcome string) {
	ParseAttemptsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordLoopDetected records a detected output loop.
func RecordLoopDetected(kind string) {
	LoopDetectionsTotal.WithLabelValues(kind).Inc()
}

// RecordUncitedReasoning records entries whose reasoning lacks a metric value.
func RecordUncitedReasoning(count int) {
	UncitedReasoningTotal.Add(float64(count))
}
