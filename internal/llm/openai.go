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

// ProviderOpenAI selects the OpenAI Chat Completions API.
const ProviderOpenAI = "openai"

const openAIBaseURL = "https://api.openai.com"

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	transport   *Transport
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	logger      *logrus.Entry
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient creates a client for cfg over transport.
func NewOpenAIClient(cfg *config.LLMConfig, transport *Transport, log *logrus.Logger) *OpenAIClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAIClient{
		transport:   transport,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: cfg.Temperature,
		logger:      log.WithFields(logrus.Fields{"component": "llm", "provider": ProviderOpenAI}),
	}
}

// Complete sends one chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := c.complete(ctx, req)

	var in, out int
	if completion != nil {
		in, out = completion.InputTokens, completion.OutputTokens
	}
	metrics.RecordLLMCall(ProviderOpenAI, Outcome(err), time.Since(start).Seconds(), in, out)
	return completion, err
}

func (c *OpenAIClient) complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.User})

	body := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	data, err := c.transport.PostJSON(ctx, c.baseURL+"/v1/chat/completions", headers, body)
	if err != nil {
		return nil, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = c.model
	}
	c.logger.WithFields(logrus.Fields{
		"completion_id": resp.ID,
		"finish_reason": choice.FinishReason,
	}).Debug("OpenAI completion received")

	return &Completion{
		Text:         choice.Message.Content,
		FinishReason: openAIFinishReason(choice.FinishReason),
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func openAIFinishReason(reason string) string {
	switch reason {
	case "length":
		return FinishLength
	case "stop", "tool_calls", "function_call", "":
		return FinishStop
	default:
		return FinishError
	}
}
