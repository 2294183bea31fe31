// Package client assembles the Harborloop sync SDK: configuration,
// logging, the HTTP transport, the query store, the typed API services,
// and the preference store, wired together behind one object.
package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/harborloop/sync-go/api"
	"github.com/harborloop/sync-go/config"
	"github.com/harborloop/sync-go/httpx"
	"github.com/harborloop/sync-go/logger"
	"github.com/harborloop/sync-go/prefs"
	"github.com/harborloop/sync-go/query"
)

// Client is the root of the SDK. All fields are initialized by New and
// safe for concurrent use; Close must be called when the client is no
// longer needed.
type Client struct {
	API   *api.API
	Store *query.Store
	Prefs *prefs.Store

	log       logger.Logger
	closeOnce sync.Once
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	logger       logger.Logger
	jar          http.CookieJar
	onSignedOut  func()
	interceptors []httpx.RequestInterceptor
}

// WithLogger replaces the logger built from config.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithCookieJar replaces the default in-memory cookie jar. Desktop
// embedders pass a persistent jar so sessions survive restarts.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// WithSignedOutHandler sets the callback fired when the API reports the
// session expired. The cache is already cleared when it runs.
func WithSignedOutHandler(fn func()) Option {
	return func(o *options) { o.onSignedOut = fn }
}

// WithRequestInterceptor adds a transport-level request interceptor,
// typically for auth headers.
func WithRequestInterceptor(interceptor httpx.RequestInterceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, interceptor) }
}

// New builds a client from validated configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client: config is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}

	jar := o.jar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: create cookie jar: %w", err)
		}
	}

	store := query.NewStore(query.Options{
		StaleAfter:      cfg.Cache.StaleAfter,
		GCAfter:         cfg.Cache.GCAfter,
		GCInterval:      cfg.Cache.GCInterval,
		RevalidateRate:  cfg.Cache.RevalidateRate,
		RevalidateBurst: cfg.Cache.RevalidateBurst,
		Logger:          log,
	})

	c := &Client{
		Store: store,
		log:   log,
	}

	builder := httpx.NewBuilder(log, cfg.API.BaseURL).
		WithTimeout(cfg.API.Timeout).
		WithRetries(cfg.API.MaxRetries, cfg.API.RetryDelay).
		WithCookieJar(jar).
		WithUnauthorizedHook(func() {
			// Session entities are gone server-side; cached copies are
			// stale by definition.
			log.Warn().Msg("Session expired, clearing cache")
			store.Clear()
			if o.onSignedOut != nil {
				o.onSignedOut()
			}
		})
	if cfg.API.UserAgent != "" {
		builder = builder.WithDefaultHeader("User-Agent", cfg.API.UserAgent)
	}
	for _, interceptor := range o.interceptors {
		builder = builder.WithRequestInterceptor(interceptor)
	}

	c.API = api.New(builder.Build(), store)

	if cfg.Prefs.Path != "" {
		p, err := prefs.Open(cfg.Prefs.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("client: %w", err)
		}
		c.Prefs = p
	}

	log.Info().
		Str("base_url", cfg.API.BaseURL).
		Str("app", cfg.App.Name).
		Msg("Harborloop client ready")

	return c, nil
}

// Close stops background cache maintenance and waits for in-flight
// revalidations. The client must not be used afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.Store.Close()
		c.log.Debug().Msg("Harborloop client closed")
	})
}
