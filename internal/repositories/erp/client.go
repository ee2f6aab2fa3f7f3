package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	apiKeyHeader         = "DOLAPIKEY"
	idempotencyKeyHeader = "Idempotency-Key"
	instrumentationName  = "github.com/petcorner/storefront/internal/repositories/erp"
	defaultTimeout       = 10 * time.Second
	maxErrorBody         = 1 << 16
)

var tracer = otel.Tracer(instrumentationName)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config captures the connection settings for the ERP REST API.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout applies when no HTTPClient is supplied.
	Timeout time.Duration
	// SendIdempotencyKey attaches the draft idempotency key to order creation. Only enable it when
	// the backend is known to deduplicate on that header.
	SendIdempotencyKey bool
	Logger             *zap.Logger
	Meter              metric.Meter
}

// Client talks to the ERP REST API. It implements the order and catalog repositories.
type Client struct {
	base           *url.URL
	client         HTTPClient
	apiKey         string
	sendIdemKey    bool
	logger         *zap.Logger
	requests       metric.Int64Counter
	requestsOK     bool
	latency        metric.Float64Histogram
	latencyEnabled bool
}

// NewClient constructs a Client. A nil httpClient falls back to an http.Client bounded by cfg.Timeout.
func NewClient(cfg Config, httpClient HTTPClient) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("erp: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("erp: parse base URL: %w", err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	requests, reqErr := meter.Int64Counter(
		"erp.requests",
		metric.WithDescription("Count of ERP API calls by operation and outcome"),
	)
	if reqErr != nil {
		logger.Warn("erp: unable to register request metric", zap.Error(reqErr))
	}
	latency, latErr := meter.Float64Histogram(
		"erp.request.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for ERP API calls"),
	)
	if latErr != nil {
		logger.Warn("erp: unable to register latency metric", zap.Error(latErr))
	}

	return &Client{
		base:           parsed,
		client:         httpClient,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		sendIdemKey:    cfg.SendIdempotencyKey,
		logger:         logger,
		requests:       requests,
		requestsOK:     reqErr == nil,
		latency:        latency,
		latencyEnabled: latErr == nil,
	}, nil
}

// Ping checks that the ERP answers authenticated requests.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "status", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "ping", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse("ping", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Error is returned for every failed ERP call. It satisfies repositories.RepositoryError.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("erp: %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("erp: %s: backend error (%d): %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("erp: %s: backend error (%d): %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *Error) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// IsUnavailable covers transport failures, throttling and server-side errors.
func (e *Error) IsUnavailable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, "erp."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(ctx))
	elapsed := time.Since(start)

	outcome := "error"
	status := 0
	if err == nil {
		status = resp.StatusCode
		outcome = outcomeForStatus(status)
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	c.record(ctx, op, outcome, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		c.logger.Warn("erp request failed",
			zap.String("op", op),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
		return nil, &Error{Op: op, Err: err}
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	c.logger.Debug("erp request",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", status),
		zap.Duration("latency", elapsed),
	)
	return resp, nil
}

func (c *Client) record(ctx context.Context, op, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	if c.requestsOK {
		c.requests.Add(ctx, 1, attrs)
	}
	if c.latencyEnabled {
		c.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

func outcomeForStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("erp: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var buf bytes.Buffer
	if payload != nil {
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			return nil, fmt.Errorf("erp: encode payload: %w", err)
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) resolve(endpoint string) string {
	trimmed := strings.TrimPrefix(endpoint, "/")
	ref, err := url.Parse(trimmed)
	if err != nil {
		ref = &url.URL{Path: trimmed}
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) errorFromResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()

	type errorPayload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if len(body) > 0 {
		var payload errorPayload
		if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
			message = payload.Error.Message
		} else {
			message = strings.TrimSpace(string(body))
		}
	}
	return &Error{Op: op, StatusCode: resp.StatusCode, Message: message}
}
