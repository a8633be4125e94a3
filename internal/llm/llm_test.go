package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/frc-picklist/internal/config"
)

func testTransportConfig() TransportConfig {
	return TransportConfig{
		Name:              "test",
		Timeout:           2 * time.Second,
		MaxRetries:        2,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      5 * time.Millisecond,
		RequestsPerSecond: 0,
		BreakerFailures:   5,
		BreakerTimeout:    time.Minute,
	}
}

func testLLMConfig(provider, baseURL string) *config.LLMConfig {
	return &config.LLMConfig{
		Provider:    provider,
		APIKey:      "secret",
		Model:       "test-model",
		BaseURL:     baseURL,
		Temperature: 0.2,
	}
}

// TestAnthropicComplete tests request shape and response normalization
func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		assert.Equal(t, 256, body.MaxTokens)
		assert.Equal(t, "sys", body.System)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		_, _ = w.Write([]byte(`{"id":"msg_1","model":"test-model-2","content":[{"type":"text","text":"{\"p\":[[254,"}],"stop_reason":"max_tokens","usage":{"input_tokens":100,"output_tokens":256}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(testLLMConfig(ProviderAnthropic, server.URL), NewTransport(testTransportConfig(), nil, nil), nil)
	completion, err := client.Complete(context.Background(), CompletionRequest{System: "sys", User: "rank", MaxOutputTokens: 256})
	require.NoError(t, err)

	assert.Equal(t, `{"p":[[254,`, completion.Text)
	assert.Equal(t, FinishLength, completion.FinishReason)
	assert.Equal(t, "test-model-2", completion.Model)
	assert.Equal(t, 100, completion.InputTokens)
	assert.Equal(t, 256, completion.OutputTokens)
}

// TestOpenAIComplete tests request shape and response normalization
func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, 0.2, body.Temperature)

		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt","choices":[{"message":{"content":"{\"p\":[],\"s\":\"overflow\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testLLMConfig(ProviderOpenAI, server.URL), NewTransport(testTransportConfig(), nil, nil), nil)
	completion, err := client.Complete(context.Background(), CompletionRequest{System: "sys", User: "rank", MaxOutputTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, FinishStop, completion.FinishReason)
	assert.Equal(t, 10, completion.InputTokens)
	assert.Contains(t, completion.Text, "overflow")
}

// TestOpenAINoChoices tests that an empty choice list is an invalid response
func TestOpenAINoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testLLMConfig(ProviderOpenAI, server.URL), NewTransport(testTransportConfig(), nil, nil), nil)
	_, err := client.Complete(context.Background(), CompletionRequest{User: "rank", MaxOutputTokens: 64})
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.False(t, IsTransient(err))
}

// TestTransportRetriesServerErrors tests that 503s are retried until success
func TestTransportRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	transport := NewTransport(testTransportConfig(), nil, nil)
	body, err := transport.PostJSON(context.Background(), server.URL, nil, map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestTransportClientErrors tests status classification without retries
func TestTransportClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth, false},
		{"bad request", http.StatusBadRequest, ErrBadRequest, false},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"unavailable", http.StatusBadGateway, ErrUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			transport := NewTransport(testTransportConfig(), nil, nil)
			_, err := transport.PostJSON(context.Background(), server.URL, nil, struct{}{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.transient, IsTransient(err))

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)

			if tt.transient {
				assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
			} else {
				assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			}
		})
	}
}

// TestTransportCircuitBreakerOpens tests that the breaker stops calls after repeated failures
func TestTransportCircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testTransportConfig()
	cfg.MaxRetries = 0
	cfg.BreakerFailures = 2

	var transitions []string
	transport := NewTransport(cfg, nil, func(name, from, to string) {
		transitions = append(transitions, from+"->"+to)
	})

	for i := 0; i < 2; i++ {
		_, err := transport.PostJSON(context.Background(), server.URL, nil, struct{}{})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", transport.State())

	_, err := transport.PostJSON(context.Background(), server.URL, nil, struct{}{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"closed->open"}, transitions)
}

// TestTransportClientErrorsDoNotTripBreaker tests that 4xx responses leave the breaker closed
func TestTransportClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testTransportConfig()
	cfg.BreakerFailures = 1
	transport := NewTransport(cfg, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := transport.PostJSON(context.Background(), server.URL, nil, struct{}{})
		assert.ErrorIs(t, err, ErrBadRequest)
	}
	assert.Equal(t, "closed", transport.State())
}

// TestTransportTimeout tests that a slow provider surfaces ErrTimeout
func TestTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 50 * time.Millisecond
	transport := NewTransport(cfg, nil, nil)

	_, err := transport.PostJSON(context.Background(), server.URL, nil, struct{}{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransient(err))
}

// TestTransportContextDeadline tests that the caller's deadline is honored
func TestTransportContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	transport := NewTransport(testTransportConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := transport.PostJSON(ctx, server.URL, nil, struct{}{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

// TestNewCompleter tests provider selection
func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(testLLMConfig(ProviderAnthropic, ""), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	c, err = NewCompleter(testLLMConfig(ProviderOpenAI, ""), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = NewCompleter(testLLMConfig("local", ""), nil, nil)
	assert.Error(t, err)

	cfg := testLLMConfig(ProviderAnthropic, "")
	cfg.APIKey = ""
	_, err = NewCompleter(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrAuth)
}

// TestFinishReasonMapping tests vendor finish reason normalization
func TestFinishReasonMapping(t *testing.T) {
	assert.Equal(t, FinishLength, anthropicFinishReason("max_tokens"))
	assert.Equal(t, FinishStop, anthropicFinishReason("end_turn"))
	assert.Equal(t, FinishError, anthropicFinishReason("refusal"))
	assert.Equal(t, FinishLength, openAIFinishReason("length"))
	assert.Equal(t, FinishError, openAIFinishReason("content_filter"))
}
