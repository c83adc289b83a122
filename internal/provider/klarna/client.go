// Package klarna drives the Klarna Payments widget API over HTTP and exposes
// it as a widget.SDK.
package klarna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/circuitbreaker"
)

const (
	defaultBaseURL       = "https://api.klarna.com"
	defaultRetryAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond

	sdkPath            = "/payments/v1/sdk"
	widgetsPath        = "/payments/v1/widgets"
	authorizationsPath = "/payments/v1/authorizations"
)

// ErrCircuitOpen is returned without calling Klarna while an endpoint's circuit is open.
var ErrCircuitOpen = errors.New("klarna: circuit open")

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "klarna_requests_total",
		Help: "Requests sent to the Klarna API by endpoint and result.",
	},
	[]string{"endpoint", "result"},
)

// Config holds the Klarna API settings.
type Config struct {
	BaseURL       string                `mapstructure:"base_url"`
	APIKey        string                `mapstructure:"api_key"`
	RetryAttempts int                   `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration         `mapstructure:"retry_delay"`
	Breaker       circuitbreaker.Config `mapstructure:"circuit_breaker"`
}

// APIError is a non-retryable error answer from Klarna.
type APIError struct {
	StatusCode    int      `json:"-"`
	ErrorCode     string   `json:"error_code"`
	ErrorMessages []string `json:"error_messages"`
	CorrelationID string   `json:"correlation_id"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("klarna: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("klarna: HTTP %d %s: %s", e.StatusCode, e.ErrorCode, strings.Join(e.ErrorMessages, "; "))
}

// Client sends JSON requests to Klarna with retries and a per-endpoint circuit breaker.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	retryAttempts int
	retryDelay    time.Duration
	breaker       *circuitbreaker.CircuitBreaker
	logger        *zap.Logger
}

// NewClient creates a Client. A nil httpClient gets a traced default.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "klarna_client"))

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	} else if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(key string, from, to circuitbreaker.State) {
			logger.Warn("circuit_state_changed",
				zap.String("endpoint", key),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		breaker:       circuitbreaker.NewCircuitBreaker(breakerCfg),
		logger:        logger,
	}
}

// do sends one logical request, retrying 429, 5xx and network errors. out
// receives the decoded body of a 2xx answer.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("klarna: encode %s request: %w", path, err)
		}
	}

	if !c.breaker.AllowRequest(path) {
		requestsTotal.WithLabelValues(path, "circuit_open").Inc()
		return fmt.Errorf("%w: %s", ErrCircuitOpen, path)
	}
	idempotencyKey := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		status, respBody, err := c.send(ctx, method, path, body, idempotencyKey)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("klarna: %s %s attempt %d: %w", method, path, attempt+1, err)
			c.logger.Warn("klarna_request_retry", zap.String("endpoint", path), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("klarna: received HTTP %d (attempt %d). Response: %s", status, attempt+1, string(respBody))
			c.logger.Warn("klarna_request_retry", zap.String("endpoint", path), zap.Int("attempt", attempt+1), zap.Int("status", status))
			continue
		}

		// A 4xx means Klarna is up; only transport-level trouble trips the breaker.
		c.breaker.RecordSuccess(path)

		if status < 200 || status >= 300 {
			requestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
			apiErr := &APIError{StatusCode: status}
			_ = json.Unmarshal(respBody, apiErr)
			return apiErr
		}

		requestsTotal.WithLabelValues(path, "success").Inc()
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("klarna: decode %s response: %w", path, err)
		}
		return nil
	}

	c.breaker.RecordFailure(path)
	requestsTotal.WithLabelValues(path, "error").Inc()
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, idempotencyKey string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Basic "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}
