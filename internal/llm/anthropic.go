package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/config"
	"github.com/yourusername/frc-picklist/internal/metrics"
)

// ProviderAnthropic selects the Anthropic Messages API.
const ProviderAnthropic = "anthropic"

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	transport   *Transport
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	logger      *logrus.Entry
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient creates a client for cfg over transport.
func NewAnthropicClient(cfg *config.LLMConfig, transport *Transport, log *logrus.Logger) *AnthropicClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{
		transport:   transport,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: cfg.Temperature,
		logger:      log.WithFields(logrus.Fields{"component": "llm", "provider": ProviderAnthropic}),
	}
}

// Complete sends one message exchange.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := c.complete(ctx, req)

	var in, out int
	if completion != nil {
		in, out = completion.InputTokens, completion.OutputTokens
	}
	metrics.RecordLLMCall(ProviderAnthropic, Outcome(err), time.Since(start).Seconds(), in, out)
	return completion, err
}

func (c *AnthropicClient) complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	body := anthropicRequest{
		Model:       c.model,
		MaxTokens:   req.MaxOutputTokens,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		Temperature: temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	data, err := c.transport.PostJSON(ctx, c.baseURL+"/v1/messages", headers, body)
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 && resp.StopReason != "max_tokens" {
		return nil, fmt.Errorf("%w: no text content (stop_reason %q)", ErrInvalidResponse, resp.StopReason)
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	c.logger.WithFields(logrus.Fields{
		"message_id":  resp.ID,
		"stop_reason": resp.StopReason,
	}).Debug("Anthropic message received")

	return &Completion{
		Text:         text.String(),
		FinishReason: anthropicFinishReason(resp.StopReason),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func anthropicFinishReason(stopReason string) string {
	switch stopReason {
	case "max_tokens":
		return FinishLength
	case "end_turn", "stop_sequence", "tool_use", "":
		return FinishStop
	default:
		return FinishError
	}
}
