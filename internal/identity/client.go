// Package identity is a thin client for the identity service contract:
// session bootstrap, login, signup, email verification, provider handshakes
// and logout. It holds no session state of its own.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/refactorly/console/internal/identity"
	maxErrorBody    = 64 << 10
	requestIDHeader = "X-Request-ID"
)

type Client struct {
	baseURL           string
	httpClient        *http.Client
	bootstrapAttempts uint
	retryInterval     time.Duration
	tracer            trace.Tracer
}

type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBootstrapRetry sets how many times BootstrapSession is attempted on
// transport or 5xx failures, and the first retry interval.
func WithBootstrapRetry(attempts uint, initialInterval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.bootstrapAttempts = attempts
		}
		if initialInterval > 0 {
			c.retryInterval = initialInterval
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        &http.Client{Timeout: 15 * time.Second},
		bootstrapAttempts: 3,
		retryInterval:     250 * time.Millisecond,
		tracer:            otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one JSON round trip. token, in and out are optional.
func (c *Client) call(ctx context.Context, op, method, path, token string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "identity."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("identity.request_id", requestID),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s request failed: %w", op, err)
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr, "op", op)
		}
	}()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(bytes.TrimSpace(raw)) > 0 {
		// Non-JSON bodies (proxies, HTML error pages) are not user-presentable.
		_ = json.Unmarshal(raw, apiErr)
	}

	return apiErr
}

// retryable reports whether a failed call may succeed if repeated.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.temporary()
	}
	return true
}

func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.Debug("identity call failed, retrying", "op", op, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.bootstrapAttempts))
	return err
}
