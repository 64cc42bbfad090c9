package goGraph

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/transport"
)

// Builder assembles an App. A Builder is single-use.
type Builder struct {
	config Config
	logger *slog.Logger
	sink   func(error)

	storage       session.Factory
	cookieStorage bool
	serverBackend session.Backend

	auditSink  AuditSink
	httpClient *http.Client

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAppCredentials sets the application id and secret.
func (b *Builder) WithAppCredentials(appID, appSecret string) *Builder {
	b.config.AppID = appID
	b.config.AppSecret = appSecret
	return b
}

// WithLogger sets the structured logger. Nil selects slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithExceptionSink sets the receiver of swallowed and asynchronous errors.
func (b *Builder) WithExceptionSink(fn func(error)) *Builder {
	b.sink = fn
	return b
}

// WithStorage sets the per-request session storage factory.
func (b *Builder) WithStorage(f session.Factory) *Builder {
	b.storage = f
	b.cookieStorage = false
	b.serverBackend = nil
	return b
}

// WithCookieStorage keeps sessions in a client cookie scoped by Config.Cookie.
func (b *Builder) WithCookieStorage() *Builder {
	b.storage = nil
	b.cookieStorage = true
	b.serverBackend = nil
	return b
}

// WithServerStorage keeps sessions in backend, keyed by an id cookie scoped by
// Config.Cookie.
func (b *Builder) WithServerStorage(backend session.Backend) *Builder {
	b.storage = nil
	b.cookieStorage = false
	b.serverBackend = backend
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithHTTPClient replaces the outbound client. Config.Proxy is then ignored.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// Build validates the configuration and returns a ready App.
func (b *Builder) Build() (*App, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config:  cfg,
		logger:  logger.With("app_id", cfg.AppID),
		sink:    b.sink,
		metrics: NewMetrics(cfg.Metrics),
	}

	switch {
	case b.storage != nil:
		app.storage = b.storage
	case b.cookieStorage:
		app.storage = session.CookieFactory(cfg.AppID, session.WithCookieDomain(cfg.Cookie.Domain))
	case b.serverBackend != nil:
		app.storage = session.ServerFactory(b.serverBackend, cfg.AppID, session.WithSecureCookie(cfg.Cookie.Secure))
	}

	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithLocale(cfg.Locale),
		transport.WithLogger(app.logger),
		transport.WithSink(app.reportAsync),
		transport.WithObserver(app.observe),
	}
	if cfg.Proxy != nil {
		opts = append(opts, transport.WithProxy(cfg.Proxy))
	}
	if b.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(b.httpClient))
	}
	t, err := transport.New(opts...)
	if err != nil {
		return nil, err
	}
	app.transport = t
	app.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	b.built = true

	return app, nil
}
