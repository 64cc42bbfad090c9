package goGraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goGraph/graphapi"
	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/transport"
)

// App is the long-lived application object built by [Builder.Build]. It owns the
// transport, metrics and audit dispatcher and creates one auth context per request.
//
// App methods are safe for concurrent use. Auth contexts are not.
type App struct {
	config    Config
	logger    *slog.Logger
	sink      func(error)
	storage   session.Factory
	transport *transport.Transport
	metrics   *Metrics
	audit     *auditDispatcher
	appTokens singleflight.Group
	closed    atomic.Bool
}

// AppID returns the configured application id.
func (a *App) AppID() string { return a.config.AppID }

// Config returns a copy of the configuration.
func (a *App) Config() Config { return cloneConfig(a.config) }

// Logger returns the App logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Transport returns the shared outbound transport.
func (a *App) Transport() *transport.Transport { return a.transport }

// Metrics returns the live counters.
func (a *App) Metrics() *Metrics { return a.metrics }

// MetricsSnapshot copies the counters. Exporters read it on every scrape.
func (a *App) MetricsSnapshot() MetricsSnapshot {
	if a == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return a.metrics.Snapshot()
}

// AuditDropped returns how many audit events were discarded under back-pressure.
func (a *App) AuditDropped() uint64 {
	if a == nil {
		return 0
	}
	return a.audit.Dropped()
}

// Close flushes pending audit events. Contexts created afterwards fail with
// ErrAppNotReady.
func (a *App) Close() {
	if a == nil || !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.audit.Close()
}

// AppAccessToken returns the application token "<AppID>|<AppSecret>".
func (a *App) AppAccessToken() string {
	return a.config.AppID + "|" + a.config.AppSecret
}

// NewAPIClient returns a graph client bound to accessToken and the configured endpoints.
func (a *App) NewAPIClient(accessToken string) (*graphapi.Client, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return graphapi.New(a.transport, accessToken,
		graphapi.WithGraphURL(a.config.Endpoints.GraphURL),
		graphapi.WithRESTURL(a.config.Endpoints.RESTURL),
	)
}

// Canvas creates the canvas auth context of one request. SiteURL and CanvasPage
// must be configured.
func (a *App) Canvas(w http.ResponseWriter, r *http.Request, opts ...ContextOption) (*CanvasContext, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if a.config.SiteURL == "" {
		return nil, fmt.Errorf("%w: SiteURL is required for canvas contexts", ErrInvalidArgument)
	}
	if a.config.CanvasPage == "" {
		return nil, fmt.Errorf("%w: CanvasPage is required for canvas contexts", ErrInvalidArgument)
	}
	return &CanvasContext{authBase: a.newBase(flowCanvas, w, r, opts)}, nil
}

// OAuth creates the OAuth auth context of one request.
func (a *App) OAuth(w http.ResponseWriter, r *http.Request, opts ...ContextOption) (*OAuthContext, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return &OAuthContext{authBase: a.newBase(flowOAuth, w, r, opts)}, nil
}

// ContextOption customizes a single auth context.
type ContextOption func(*contextOptions)

type contextOptions struct {
	storage    session.Storage
	storageSet bool
	sink       func(error)
}

// WithSessionStorage overrides the App storage factory for one context. Nil disables
// persistence.
func WithSessionStorage(s session.Storage) ContextOption {
	return func(o *contextOptions) {
		o.storage = s
		o.storageSet = true
	}
}

// WithContextSink overrides the App exception sink for one context.
func WithContextSink(fn func(error)) ContextOption {
	return func(o *contextOptions) { o.sink = fn }
}

func (a *App) newBase(flow string, w http.ResponseWriter, r *http.Request, opts []ContextOption) authBase {
	var o contextOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	b := authBase{app: a, flow: flow, sink: a.sink}
	if o.sink != nil {
		b.sink = o.sink
	}
	switch {
	case o.storageSet:
		b.storage = o.storage
	case a.storage != nil && w != nil && r != nil:
		b.storage = a.storage(w, r)
	}
	return b
}

func (a *App) ready() error {
	if a == nil || a.transport == nil || a.closed.Load() {
		return ErrAppNotReady
	}
	return nil
}

// observe feeds transport outcomes into the API counters.
func (a *App) observe(verb transport.Verb, status int, elapsed time.Duration, err error) {
	a.metrics.Inc(MetricAPICall)
	a.metrics.Observe(MetricAPILatency, elapsed)
	if err != nil {
		a.metrics.Inc(MetricAPIError)
	}
}

// reportAsync receives faults raised inside asynchronous continuations.
func (a *App) reportAsync(err error) {
	a.logger.Error("async operation failed", "error", err)
	if a.sink != nil {
		a.sink(err)
	}
}

// expired reports whether err is a timeout or cancellation, which are logged quieter.
func expired(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrTimeout)
}
