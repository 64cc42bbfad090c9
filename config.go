package goGraph

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/language"

	"github.com/MrEthical07/goGraph/graphapi"
	"github.com/MrEthical07/goGraph/transport"
)

// Default endpoint locations.
const (
	DefaultGraphURL     = graphapi.DefaultGraphURL
	DefaultRESTURL      = graphapi.DefaultRESTURL
	DefaultWebURL       = "https://www.graph.example"
	DefaultAuthorizeURL = "https://graph.example/oauth/authorize"
	DefaultTokenURL     = "https://graph.example/oauth/access_token"
)

// Config holds the application bindings and the ambient settings of an App.
//
// A Config is copied into the App on Build and is immutable afterwards.
type Config struct {
	AppID     string
	AppSecret string

	// SiteURL and CanvasPage are required by canvas contexts only.
	SiteURL    string
	CanvasPage string

	// Locale drives the Accept-Language header. language.Und selects English.
	Locale  language.Tag
	Timeout time.Duration
	// Proxy selects the outbound proxy. Nil uses the environment.
	Proxy func(*http.Request) (*url.URL, error)

	Endpoints EndpointConfig
	Cookie    CookieConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
ENDPOINT CONFIG
====================================
*/

// EndpointConfig locates the remote service.
type EndpointConfig struct {
	GraphURL string
	RESTURL  string
	WebURL   string
	// OAuth carries the authorize and token URLs.
	OAuth oauth2.Endpoint
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig scopes the cookies written by session storages.
type CookieConfig struct {
	Domain string
	Secure bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a Config with every setting except the application bindings.
func DefaultConfig() Config {
	return Config{
		Locale:  language.English,
		Timeout: transport.DefaultTimeout,
		Endpoints: EndpointConfig{
			GraphURL: DefaultGraphURL,
			RESTURL:  DefaultRESTURL,
			WebURL:   DefaultWebURL,
			OAuth: oauth2.Endpoint{
				AuthURL:   DefaultAuthorizeURL,
				TokenURL:  DefaultTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if out.Locale == language.Und {
		out.Locale = language.English
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidArgument.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("%w: AppID is required", ErrInvalidArgument)
	}
	if c.AppSecret == "" {
		return fmt.Errorf("%w: AppSecret is required", ErrInvalidArgument)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: Timeout must be > 0", ErrInvalidArgument)
	}

	for _, ep := range []struct{ name, value string }{
		{"Endpoints GraphURL", c.Endpoints.GraphURL},
		{"Endpoints RESTURL", c.Endpoints.RESTURL},
		{"Endpoints WebURL", c.Endpoints.WebURL},
		{"Endpoints OAuth AuthURL", c.Endpoints.OAuth.AuthURL},
		{"Endpoints OAuth TokenURL", c.Endpoints.OAuth.TokenURL},
	} {
		if err := requireAbsolute(ep.name, ep.value); err != nil {
			return err
		}
	}

	if c.SiteURL != "" {
		if err := requireAbsolute("SiteURL", c.SiteURL); err != nil {
			return err
		}
	}
	if c.CanvasPage != "" {
		if err := requireAbsolute("CanvasPage", c.CanvasPage); err != nil {
			return err
		}
	}
	if strings.ContainsAny(c.Cookie.Domain, " ;,") {
		return fmt.Errorf("%w: Cookie Domain is invalid", ErrInvalidArgument)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when audit is enabled", ErrInvalidArgument)
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return fmt.Errorf("%w: Metrics EnableLatencyHistograms requires Metrics Enabled", ErrInvalidArgument)
	}

	return nil
}

func requireAbsolute(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute URL", ErrInvalidArgument, name)
	}
	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Has reports whether code is among the warnings.
func (ws LintWarnings) Has(code string) bool {
	return slices.Contains(ws.Codes(), code)
}

// Lint flags settings that pass Validate but weaken the deployment.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) { ws = append(ws, LintWarning{Code: code, Message: msg}) }

	for _, raw := range []string{
		c.Endpoints.GraphURL,
		c.Endpoints.RESTURL,
		c.Endpoints.WebURL,
		c.Endpoints.OAuth.AuthURL,
		c.Endpoints.OAuth.TokenURL,
	} {
		if strings.HasPrefix(strings.ToLower(raw), "http://") {
			add("plaintext_endpoint", "endpoint "+raw+" is not https; tokens travel in the clear")
			break
		}
	}
	if c.Timeout > 2*transport.DefaultTimeout {
		add("timeout_long", "timeout exceeds twice the default")
	}
	if !c.Cookie.Secure {
		add("cookie_not_secure", "session cookies are sent over plain http")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", "audit emission blocks requests when the buffer is full")
	}
	return ws
}
