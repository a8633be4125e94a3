package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yourusername/frc-picklist/internal/config"
	"github.com/yourusername/frc-picklist/internal/metrics"
)

const maxResponseBytes = 8 << 20

// TransportConfig holds configuration for the provider HTTP transport
type TransportConfig struct {
	Name              string
	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	BreakerFailures   int
	BreakerTimeout    time.Duration
}

// DefaultTransportConfig returns recommended defaults
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Name:              "llm",
		Timeout:           120 * time.Second,
		MaxRetries:        2,
		RetryWaitMin:      500 * time.Millisecond,
		RetryWaitMax:      10 * time.Second,
		RequestsPerSecond: 2,
		BreakerFailures:   5,
		BreakerTimeout:    30 * time.Second,
	}
}

// TransportConfigFrom converts the llm config section.
func TransportConfigFrom(cfg *config.LLMConfig) TransportConfig {
	return TransportConfig{
		Name:              cfg.Provider,
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries:        cfg.MaxRetries,
		RetryWaitMin:      time.Duration(cfg.RetryWaitMinMs) * time.Millisecond,
		RetryWaitMax:      time.Duration(cfg.RetryWaitMaxMs) * time.Millisecond,
		RequestsPerSecond: cfg.RequestsPerSecond,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerTimeout:    time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
	}
}

// StateObserver is notified when the circuit breaker changes state.
type StateObserver func(name, from, to string)

// Transport wraps retryablehttp.Client with rate limiting and a circuit breaker
type Transport struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
}

type rawResponse struct {
	status int
	body   []byte
}

// retryLogger routes retryablehttp's Printf output to debug level.
type retryLogger struct {
	entry *logrus.Entry
}

func (l retryLogger) Printf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// NewTransport creates a new rate-limited, breaker-guarded transport
func NewTransport(cfg TransportConfig, log *logrus.Logger, observer StateObserver) *Transport {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	entry := log.WithFields(logrus.Fields{"component": "llm_transport", "provider": cfg.Name})

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = customRetryPolicy()
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = retryLogger{entry: entry}

	failures := uint32(max(cfg.BreakerFailures, 1))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("LLM circuit breaker state changed")
			metrics.RecordCircuitBreakerStateChange(name, to.String())
			if observer != nil {
				observer(name, from.String(), to.String())
			}
		},
	})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Transport{
		client:  retryClient,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  entry,
	}
}

// PostJSON sends body as JSON and returns the raw 2xx response body.
// Non-2xx responses come back as *HTTPError.
func (t *Transport) PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, classify(fmt.Errorf("rate limiter: %w", err))
	}

	out, err := t.breaker.Execute(func() (interface{}, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		// Only server-side failures count against the breaker.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return &rawResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, classify(err)
	}

	raw := out.(*rawResponse)
	if raw.status < 200 || raw.status >= 300 {
		return nil, &HTTPError{StatusCode: raw.status, Body: string(raw.body)}
	}
	return raw.body, nil
}

// State returns the breaker state name.
func (t *Transport) State() string {
	return t.breaker.State().String()
}

// Close closes any resources held by the transport
func (t *Transport) Close() error {
	t.client.HTTPClient.CloseIdleConnections()
	return nil
}

// customRetryPolicy defines which HTTP responses should trigger a retry
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			// Retry on network errors
			return true, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
			return true, nil
		}
		return false, nil
	}
}
