package httpx

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"
)

// Client defines the REST client interface for talking to the Harborloop API.
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents an HTTP request with all necessary data.
// Path is joined onto the client's base URL.
type Request struct {
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// UnauthorizedHook is invoked when the API answers 401. A 401 is a
// session-wide signal, not a per-request one: the embedding application
// clears its cache and routes to sign-in.
type UnauthorizedHook func()

// Config holds the REST client configuration
type Config struct {
	BaseURL              string
	Timeout              time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	DefaultHeaders       map[string]string
	// CookieJar carries the session cookie across requests.
	CookieJar nethttp.CookieJar
	// OnUnauthorized fires on 401 responses, coalesced per burst.
	OnUnauthorized UnauthorizedHook
	// UnauthorizedCoalesce is the minimum gap between OnUnauthorized firings.
	UnauthorizedCoalesce time.Duration
}
