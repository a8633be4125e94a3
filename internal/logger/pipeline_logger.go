// Package logger provides picklist pipeline logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// PipelineLogger provides one structured event per observable pipeline step.
type PipelineLogger struct {
	*logrus.Entry
}

// NewPipelineLogger creates a new pipeline logger.
func NewPipelineLogger(baseLogger *logrus.Logger) *PipelineLogger {
	return &PipelineLogger{
		Entry: baseLogger.WithField("component", "picklist"),
	}
}

// WithFingerprint scopes the logger to one request fingerprint.
func (pl *PipelineLogger) WithFingerprint(fingerprint string) *PipelineLogger {
	return &PipelineLogger{Entry: pl.WithField("fingerprint", shortFingerprint(fingerprint))}
}

// LogParseAttempt logs one parser stage and its outcome.
func (pl *PipelineLogger) LogParseAttempt(stage, outcome string, entries int, err error) {
	entry := pl.WithFields(logrus.Fields{
		"stage":   stage,
		"outcome": outcome,
		"entries": entries,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if outcome == "success" {
		entry.Debug("Parse stage succeeded")
		return
	}
	entry.Info("Parse stage did not produce a result")
}

// LogLoopDetected logs a repetition loop in model output.
func (pl *PipelineLogger) LogLoopDetected(kind string, total, kept int, duplicateRatio float64) {
	pl.WithFields(logrus.Fields{
		"kind":            kind,
		"records_total":   total,
		"records_kept":    kept,
		"duplicate_ratio": duplicateRatio,
	}).Warn("Model output loop detected")
}

// LogReconciliation logs the outcome of reconciling model entries against the roster.
func (pl *PipelineLogger) LogReconciliation(roster, ranked, autoAdded, duplicatesDropped, unknownDropped int, fallbackScore float64) {
	pl.WithFields(logrus.Fields{
		"roster":             roster,
		"ranked":             ranked,
		"auto_added":         autoAdded,
		"duplicates_dropped": duplicatesDropped,
		"unknown_dropped":    unknownDropped,
		"fallback_score":     fallbackScore,
	}).Info("Ranking reconciled")
}

// LogInvariantViolation logs an internal consistency failure.
func (pl *PipelineLogger) LogInvariantViolation(missing, extra, duplicated []int) {
	pl.WithFields(logrus.Fields{
		"missing":    missing,
		"extra":      extra,
		"duplicated": duplicated,
	}).Error("INVARIANT VIOLATION: reconciled ranking does not match roster")
}

// LogChunkComplete logs a finished batch chunk.
func (pl *PipelineLogger) LogChunkComplete(chunk, chunks, teams, ranked int, offset float64, err error) {
	entry := pl.WithFields(logrus.Fields{
		"chunk":              chunk,
		"chunks":             chunks,
		"teams":              teams,
		"ranked":             ranked,
		"calibration_offset": offset,
	})
	if err != nil {
		entry.WithError(err).Warn("Batch chunk failed")
		return
	}
	entry.Info("Batch chunk complete")
}

// LogCacheEvent logs a result cache interaction.
func (pl *PipelineLogger) LogCacheEvent(event, fingerprint string) {
	pl.WithFields(logrus.Fields{
		"event":       event,
		"fingerprint": shortFingerprint(fingerprint),
	}).Debug("Picklist cache event")
}

// LogLLMCall logs a completed model call.
func (pl *PipelineLogger) LogLLMCall(model, finishReason string, attempt, inputTokens, outputTokens int, latencyMs float64, err error) {
	entry := pl.WithFields(logrus.Fields{
		"model":         model,
		"finish_reason": finishReason,
		"attempt":       attempt,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"latency_ms":    latencyMs,
	})
	if err != nil {
		entry.WithError(err).Warn("LLM call failed")
		return
	}
	entry.Info("LLM call completed")
}

// LogGenerationComplete logs the final state of a generation.
func (pl *PipelineLogger) LogGenerationComplete(status, mode string, teams, autoAdded int, loopDetected bool, durationMs float64) {
	pl.WithFields(logrus.Fields{
		"status":        status,
		"mode":          mode,
		"teams":         teams,
		"auto_added":    autoAdded,
		"loop_detected": loopDetected,
		"duration_ms":   durationMs,
	}).Info("Picklist generation finished")
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
