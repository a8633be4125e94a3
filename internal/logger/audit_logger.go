// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides an audit trail of caller-driven changes to cached picklists.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogInvalidation logs removal of one cached result, or all of them when fingerprint is empty.
func (al *AuditLogger) LogInvalidation(fingerprint, reason string) {
	scope := "single"
	if fingerprint == "" {
		scope = "all"
	}
	al.WithFields(logrus.Fields{
		"fingerprint": shortFingerprint(fingerprint),
		"scope":       scope,
		"reason":      reason,
		"timestamp":   time.Now().Unix(),
	}).Info("Picklist cache invalidated")
}

// LogMerge logs an incremental merge into a prior result.
func (al *AuditLogger) LogMerge(resultID string, replaced, ignored, stillAutoAdded int) {
	al.WithFields(logrus.Fields{
		"result_id":        resultID,
		"replaced":         replaced,
		"ignored":          ignored,
		"still_auto_added": stillAutoAdded,
	}).Info("Picklist merged with new rankings")
}

// LogCircuitBreakerEvent logs an LLM circuit breaker transition.
func (al *AuditLogger) LogCircuitBreakerEvent(name, from, to string) {
	al.WithFields(logrus.Fields{
		"breaker": name,
		"from":    from,
		"to":      to,
	}).Warn("Circuit breaker state changed")
}
