// Package llm provides chat completion clients for the picklist pipeline.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/config"
	"github.com/yourusername/frc-picklist/internal/logger"
)

// Normalized finish reasons.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System          string
	User            string
	MaxOutputTokens int
	Temperature     float64
}

// Completion is a provider response normalized across vendors.
type Completion struct {
	Text         string
	FinishReason string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer is the chat completion call the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// NewCompleter builds the configured provider client over a shared transport.
func NewCompleter(cfg *config.LLMConfig, log *logrus.Logger, audit *logger.AuditLogger) (Completer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm.api_key is not set: %w", ErrAuth)
	}

	var observer StateObserver
	if audit != nil {
		observer = audit.LogCircuitBreakerEvent
	}
	transport := NewTransport(TransportConfigFrom(cfg), log, observer)

	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, transport, log), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, transport, log), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
