// Package httpx provides the REST transport for the Harborloop API: JSON
// requests with default headers and a session cookie jar, a typed error
// taxonomy for non-2xx responses, and a retry mechanism with exponential
// backoff and jitter.
//
// Retries
//   - Controlled via Builder.WithRetries(maxRetries, retryDelay).
//   - Only GET requests are retried; writes surface their first failure so
//     the caller's optimistic state can be rolled back and retried by the user.
//   - Retries occur on transport errors, timeouts, and HTTP 5xx responses.
//
// Backoff Strategy
//   - Exponential backoff based on retryDelay: delay = retryDelay * 2^attempt
//   - Full jitter is applied: actual sleep is random in [0, delay).
//   - Delay is capped at 30 seconds to avoid excessive waits.
package httpx

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	nethttp "net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harborloop/sync-go/logger"
	"github.com/harborloop/sync-go/trace"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default maximum number of retries for failed GETs
	DefaultMaxRetries = 0

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultUnauthorizedCoalesce is the default minimum gap between
	// OnUnauthorized firings.
	DefaultUnauthorizedCoalesce = 2 * time.Second
)

// client implements the Client interface
type client struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	callCount            int64
	lastUnauthorized     atomic.Int64 // unix nanos of the last hook firing
}

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config *Config
	logger logger.Logger
}

// NewBuilder creates a new client builder for the given API base URL.
func NewBuilder(log logger.Logger, baseURL string) *Builder {
	return &Builder{
		config: &Config{
			BaseURL:              baseURL,
			Timeout:              DefaultTimeout,
			MaxRetries:           DefaultMaxRetries,
			RetryDelay:           DefaultRetryDelay,
			RequestInterceptors:  []RequestInterceptor{},
			ResponseInterceptors: []ResponseInterceptor{},
			DefaultHeaders:       make(map[string]string),
			UnauthorizedCoalesce: DefaultUnauthorizedCoalesce,
		},
		logger: log,
	}
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the retry configuration for GET requests
func (b *Builder) WithRetries(maxRetries int, retryDelay time.Duration) *Builder {
	b.config.MaxRetries = maxRetries
	b.config.RetryDelay = retryDelay
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithCookieJar sets the cookie jar carrying the session cookie
func (b *Builder) WithCookieJar(jar nethttp.CookieJar) *Builder {
	b.config.CookieJar = jar
	return b
}

// WithUnauthorizedHook sets the session-expiry callback fired on 401 responses
func (b *Builder) WithUnauthorizedHook(hook UnauthorizedHook) *Builder {
	b.config.OnUnauthorized = hook
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	return &client{
		httpClient: &nethttp.Client{
			Timeout: b.config.Timeout,
			Jar:     b.config.CookieJar,
		},
		logger:               b.logger,
		config:               b.config,
		requestInterceptors:  b.config.RequestInterceptors,
		responseInterceptors: b.config.ResponseInterceptors,
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do performs an HTTP request with the specified method
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	// Pin the request ID so headers, logs, and retries share one value.
	ctx = trace.WithRequestID(ctx, trace.EnsureRequestID(ctx))

	start := time.Now()
	callCount := atomic.AddInt64(&c.callCount, 1)

	// Writes are never retried automatically; retrying is a user action.
	maxRetries := 0
	if method == nethttp.MethodGet {
		maxRetries = c.config.MaxRetries
	}

	for attempt := 0; ; attempt++ {
		c.logRequest(ctx, method, req)

		httpReq, err := c.buildRequest(ctx, method, req)
		if err != nil {
			return nil, err
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if c.isTimeout(err) {
				if attempt < maxRetries {
					time.Sleep(c.backoffDelay(attempt))
					continue
				}
				return nil, NewTimeoutError("request timeout", c.config.Timeout)
			}
			if attempt < maxRetries {
				time.Sleep(c.backoffDelay(attempt))
				continue
			}
			return nil, NewNetworkError("request execution failed", err)
		}

		resp, err := c.buildResponse(ctx, start, callCount, httpReq, httpResp)
		if err != nil {
			if attempt < maxRetries && IsKind(err, NetworkError) {
				time.Sleep(c.backoffDelay(attempt))
				continue
			}
			return nil, err
		}

		if IsSuccessStatus(resp.StatusCode) {
			c.logResponse(ctx, resp)
			return resp, nil
		}

		if resp.StatusCode >= 500 && attempt < maxRetries {
			time.Sleep(c.backoffDelay(attempt))
			continue
		}

		c.logResponse(ctx, resp)

		if resp.StatusCode == nethttp.StatusUnauthorized {
			c.fireUnauthorized()
		}

		return resp, NewStatusError(resp.StatusCode, resp.Body)
	}
}

// fireUnauthorized invokes the 401 hook, coalescing bursts so that N parallel
// requests failing against an expired session trigger one sign-out, not N.
func (c *client) fireUnauthorized() {
	hook := c.config.OnUnauthorized
	if hook == nil {
		return
	}

	window := c.config.UnauthorizedCoalesce
	if window <= 0 {
		window = DefaultUnauthorizedCoalesce
	}

	now := time.Now().UnixNano()
	last := c.lastUnauthorized.Load()
	if now-last < int64(window) {
		return
	}
	if !c.lastUnauthorized.CompareAndSwap(last, now) {
		return
	}

	hook()
}

// backoffDelay returns the exponential backoff delay for the given attempt,
// using RetryDelay as the base and capping to a reasonable maximum.
func (c *client) backoffDelay(attempt int) time.Duration {
	base := c.config.RetryDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	// Cap attempt to avoid overflow when computing multiplier
	if attempt > 20 { // 2^20 = 1,048,576
		attempt = 20
	}
	// Exponential backoff: base * 2^attempt
	mult := 1 << attempt
	d := base * time.Duration(mult)
	// Cap to 30 seconds to avoid excessive sleeps
	const maxBackoff = 30 * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	// Full jitter: random duration in [0, d)
	if d <= 0 {
		return base
	}
	maxN := big.NewInt(int64(d))
	n, err := crand.Int(crand.Reader, maxN)
	if err != nil {
		// On RNG failure, fall back to the full delay
		return d
	}
	return time.Duration(n.Int64())
}

// validateRequest validates the request before sending
func (c *client) validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("httpx: request cannot be nil")
	}
	if req.Path == "" {
		return fmt.Errorf("httpx: request path cannot be empty")
	}
	return nil
}

// requestURL joins the configured base URL with the request path and query.
func (c *client) requestURL(req *Request) string {
	u := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// applyHeaders applies headers to the HTTP request
func (c *client) applyHeaders(ctx context.Context, httpReq *nethttp.Request, req *Request) {
	// Apply default headers first
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	// Apply request-specific headers (these override defaults)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	// Set Content-Type if not already set and body is present
	if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// Propagate the request ID from context, generating one when absent
	if httpReq.Header.Get(trace.HeaderXRequestID) == "" {
		httpReq.Header.Set(trace.HeaderXRequestID, trace.EnsureRequestID(ctx))
	}
}

// buildRequest constructs an *http.Request, applies headers, and runs request interceptors.
func (c *client) buildRequest(ctx context.Context, method string, req *Request) (*nethttp.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, c.requestURL(req), body)
	if err != nil {
		return nil, NewNetworkError("failed to create HTTP request", err)
	}

	c.applyHeaders(ctx, httpReq, req)

	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, NewNetworkError("request interceptor failed", err)
		}
	}
	return httpReq, nil
}

// buildResponse runs response interceptors, reads body, and builds a Response.
func (c *client) buildResponse(ctx context.Context, start time.Time, callCount int64, httpReq *nethttp.Request, httpResp *nethttp.Response) (*Response, error) {
	defer httpResp.Body.Close()

	for _, interceptor := range c.responseInterceptors {
		if err := interceptor(ctx, httpReq, httpResp); err != nil {
			return nil, NewNetworkError("response interceptor failed", err)
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	elapsed := time.Since(start)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
		Stats: Stats{
			ElapsedTime: elapsed,
			CallCount:   callCount,
		},
	}, nil
}

func (c *client) isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// logRequest logs the outgoing request
func (c *client) logRequest(ctx context.Context, method string, req *Request) {
	c.logger.Debug().
		Str("direction", "outbound").
		Str("method", method).
		Str("path", req.Path).
		Str("request_id", trace.EnsureRequestID(ctx)).
		Msg("API request")
}

// logResponse logs the incoming response
func (c *client) logResponse(_ context.Context, resp *Response) {
	c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Msg("API response")
}
