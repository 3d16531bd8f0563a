package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/annosync/observe"
	"github.com/jonwraymond/annosync/session"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://review.example.com/api".
	BaseURL string

	// HTTPClient is the underlying HTTP client.
	// If nil, a default client is used.
	HTTPClient *http.Client

	// Timeout is the fixed per-request timeout.
	// Default: 10 seconds.
	Timeout time.Duration

	// ReadRetries is the number of retries after a failed read attempt.
	// Default: 2.
	ReadRetries int

	// RetryDelay is the fixed delay between read attempts.
	// Default: 250ms.
	RetryDelay time.Duration

	// Tokens supplies the bearer token injected on every request.
	// If nil, requests are sent unauthenticated.
	Tokens session.TokenSource

	// Monitor is notified on 401 responses. May be nil.
	Monitor *session.Monitor

	// Logger receives request/failure events. If nil, logging is disabled.
	Logger observe.Logger

	// Tracer records a span per request. If nil, a no-op tracer is used.
	Tracer trace.Tracer
}

// Client executes requests against the annotation-review backend.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	reads   retryPolicy
	tokens  session.TokenSource
	monitor *session.Monitor
	logger  observe.Logger
	tracer  trace.Tracer
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadRetries <= 0 {
		cfg.ReadRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("annosync/transport")
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		tokens:  cfg.Tokens,
		monitor: cfg.Monitor,
		logger:  cfg.Logger.WithComponent("transport"),
		tracer:  cfg.Tracer,
	}
	c.reads = retryPolicy{
		maxAttempts: 1 + cfg.ReadRetries,
		delay:       cfg.RetryDelay,
		retryIf:     readRetryable,
		onRetry: func(attempt int, err error) {
			c.logger.Debug(context.Background(), "retrying read",
				observe.F("attempt", attempt),
				observe.F("kind", KindOf(err).String()))
		},
	}
	return c
}

// Get issues a GET and decodes the JSON response into out. Retryable
// failure kinds are retried per the read policy.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.reads.execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

// Patch issues a PATCH with a JSON body and decodes the response into
// out. Writes execute exactly once; a retry is the caller's decision.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

// errorBody is the backend's error response shape.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		te := classifyTransport(err)
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Kind.String())
		c.logger.Warn(ctx, "request failed",
			observe.F("method", method),
			observe.F("path", path),
			observe.F("kind", te.Kind.String()))
		return te
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := c.responseError(resp)
		span.SetStatus(codes.Error, te.Kind.String())
		c.logger.Warn(ctx, "request rejected",
			observe.F("method", method),
			observe.F("path", path),
			observe.F("status", resp.StatusCode),
			observe.F("kind", te.Kind.String()))
		if te.Kind == KindUnauthorized && c.monitor != nil {
			c.monitor.NotifyUnauthorized()
		}
		return te
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindUnknown, cause: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func (c *Client) responseError(resp *http.Response) *Error {
	var detail string
	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb); err == nil {
		detail = eb.Detail
		if detail == "" {
			detail = eb.Error
		}
	}

	var retryAfter time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return classifyStatus(resp.StatusCode, detail, retryAfter)
}
