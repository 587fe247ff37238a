// Package transport provides the JSON-over-HTTP client shared by every remote
// collaborator (indexers, Horizon, the custodial backend, BitPay).
//
// Reads are rate limited, retried on transient failures, and guarded by a
// per-service circuit breaker. Writes (order creation, broadcast) pass through
// the limiter and breaker but are never retried.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mrz1836/coincore/internal/chain"
	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

const (
	// httpTimeout is the default HTTP request timeout.
	httpTimeout = 30 * time.Second

	// maxResponseBody is the maximum response body size to read (1 MB).
	maxResponseBody = 1 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.Status, e.Body)
}

// Observer receives one observation per request.
type Observer interface {
	RecordRemoteCall(service string, duration time.Duration, err error)
}

// LogWriter is the logging interface used by the client.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// RateLimiter is shared across clients; one bucket per service name.
	RateLimiter *chain.RateLimiter
	// Retry configures read retries.
	Retry *chain.RetryConfig
	// Headers are sent on every request (for example Authorization).
	Headers map[string]string
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	Observer       Observer
	Logger         LogWriter
}

// Client is a JSON HTTP client bound to one service base URL.
type Client struct {
	service    string
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *chain.RateLimiter
	retry      chain.RetryConfig
	headers    map[string]string
	breaker    *gobreaker.CircuitBreaker
	observer   Observer
	logger     LogWriter
}

// New creates a client for service rooted at baseURL.
func New(service, baseURL string, opts *Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, coreerr.WithDetails(coreerr.ErrConfigInvalid, map[string]string{
			"service": service,
			"url":     baseURL,
		})
	}

	if opts == nil {
		opts = &Options{}
	}

	c := &Client{
		service: service,
		baseURL: u,
		httpClient: &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter:  chain.DefaultRateLimiter(),
		retry:    chain.DefaultRetryConfig(),
		headers:  opts.Headers,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	}
	if opts.RateLimiter != nil {
		c.limiter = opts.RateLimiter
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "service-" + service,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.debug("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return c, nil
}

// Service returns the service name used for rate limiting and metrics.
func (c *Client) Service() string {
	return c.service
}

// GetJSON performs a GET request and decodes the JSON response into out.
// Transient failures are retried.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	retry := c.retry
	retry.OnRetry = func(attempt int, err error) {
		c.debug("%s GET %s retry %d: %v", c.service, path, attempt, err)
	}
	_, err := chain.RetryWithConfig(ctx, retry, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, http.MethodGet, path, query, nil, "", out)
	})
	return err
}

// PostJSON performs a POST with a JSON body. It is never retried.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, "application/json", out)
}

// PutJSON performs a PUT with a JSON body. It is never retried.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, nil, payload, "application/json", out)
}

// PostForm performs a form-encoded POST. It is never retried.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, []byte(form.Encode()), "application/x-www-form-urlencoded", out)
}

// PostRaw performs a POST with a raw text body and returns the raw response body.
// It is never retried.
func (c *Client) PostRaw(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	var raw rawBody
	if err := c.do(ctx, http.MethodPost, path, nil, body, contentType, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetRaw performs a GET and returns the raw response body. Transient failures are retried.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var raw rawBody
	if err := c.GetJSON(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// rawBody captures the response body without decoding.
type rawBody []byte

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	if err := c.limiter.Wait(ctx, c.service); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, contentType, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = coreerr.Wrap(coreerr.ErrServiceUnavailable, "%s", c.service)
	}
	if c.observer != nil {
		c.observer.RecordRemoteCall(c.service, time.Since(start), err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	reqURL := c.resolve(path, query)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL is constructed from validated config, not user input
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return chain.WrapRetryable(&coreerr.CoreError{
			Code:     coreerr.ErrNetworkError.Code,
			Message:  fmt.Sprintf("%s %s failed", method, c.service),
			Cause:    err,
			ExitCode: coreerr.ErrNetworkError.ExitCode,
		})
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return chain.WrapRetryable(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return coreerr.WithDetails(chain.ErrRateLimited, map[string]string{
			"service":     c.service,
			"retry_after": strconv.Itoa(int(chain.ParseRetryAfter(resp.Header.Get("Retry-After")).Seconds())),
		})
	case resp.StatusCode >= http.StatusInternalServerError:
		return chain.WrapRetryable(&StatusError{Service: c.service, Status: resp.StatusCode, Body: truncateBody(string(data), 512)})
	case resp.StatusCode == http.StatusNotFound:
		return coreerr.WithDetails(coreerr.ErrNotFound, map[string]string{
			"service": c.service,
			"path":    path,
		})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Service: c.service, Status: resp.StatusCode, Body: truncateBody(string(data), 512)}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*rawBody); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", c.service, err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) debug(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

// isBreakerSuccess keeps client-side outcomes (4xx, cancellation) from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, coreerr.ErrNotFound) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) && se.Status < http.StatusInternalServerError {
		return true
	}
	return false
}

// truncateBody truncates a string to maxLen characters.
func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
