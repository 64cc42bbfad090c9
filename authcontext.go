package goGraph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGraph/graphapi"
	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/transport"
)

// AuthContext is the capability set shared by the canvas and OAuth flows. Page code
// and the middleware consume it without knowing which flow produced the session.
type AuthContext interface {
	IsAuthenticated() bool
	// UserID returns 0 when there is no session. The OAuth flow never learns the
	// user id and returns ErrNotSupported.
	UserID() (int64, error)
	AppID() string
	Session() *session.Session
	AccessToken() (string, error)
	AppAccessToken() string
	// Expires returns the zero time when there is no session.
	Expires() time.Time
	APIClient() (*graphapi.Client, error)
	AppAPIClient() (*graphapi.Client, error)
	LoginURL(next string, opts *LoginOptions) (string, error)
	LogoutURL(next string) (string, error)
}

// Display selects how the login dialog renders.
type Display string

const (
	DisplayNotSet Display = ""
	DisplayPage   Display = "page"
	DisplayPopup  Display = "popup"
	DisplayWAP    Display = "wap"
	DisplayTouch  Display = "touch"
)

// LoginOptions tunes a login URL.
type LoginOptions struct {
	// Permissions are requested as req_perms (canvas) or scope (OAuth).
	Permissions []string
	Display     Display
	// CancelURL is honored by the canvas flow only.
	CancelURL string
	// Params are merged last and override every generated parameter.
	Params map[string]string
}

// reservedParams never survive into a next/redirect URL.
var reservedParams = map[string]struct{}{
	"session":        {},
	"signed_request": {},
	"code":           {},
}

// StripProhibitedKeys rebuilds u as scheme://host/path plus its query without the
// session, signed_request and code parameters. Repeated parameters are joined with
// commas. The "?" is omitted when nothing remains.
func StripProhibitedKeys(u *url.URL) string {
	kept := make(map[string]string)
	for k, vs := range u.Query() {
		if _, reserved := reservedParams[k]; reserved || len(vs) == 0 {
			continue
		}
		kept[k] = strings.Join(vs, ",")
	}

	base := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, RawPath: u.RawPath}).String()
	return transport.AppendQuery(base, kept)
}

func parseNext(next string) (*url.URL, error) {
	if next == "" {
		return nil, fmt.Errorf("%w: next url is required", ErrInvalidArgument)
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: next url must be absolute", ErrInvalidArgument)
	}
	return u, nil
}

// CurrentURL returns the absolute URL of the request being served, query included.
// The scheme honours X-Forwarded-Proto so login redirects and code exchanges built
// behind a TLS-terminating proxy name the same redirect_uri.
func CurrentURL(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	u := url.URL{Scheme: scheme, Host: host, Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}
	return u.String()
}

// redirectURI is CurrentURL(r) without the reserved keys: the same value a login
// redirect built from the page sent, once the provider has appended its code.
func redirectURI(r *http.Request) string {
	u, err := url.Parse(CurrentURL(r))
	if err != nil {
		return ""
	}
	return StripProhibitedKeys(u)
}

const (
	flowCanvas = "canvas"
	flowOAuth  = "oauth"
)

// authBase carries the state common to both flows. It is owned by one request.
type authBase struct {
	app     *App
	flow    string
	sink    func(error)
	storage session.Storage
	session *session.Session

	apiClient    *graphapi.Client
	apiToken     string
	appAPIClient *graphapi.Client
}

// IsAuthenticated reports whether a live session is present.
func (b *authBase) IsAuthenticated() bool {
	return b.session != nil && !b.session.IsExpired()
}

func (b *authBase) AppID() string { return b.app.config.AppID }

// Session returns the current session, possibly nil or expired.
func (b *authBase) Session() *session.Session { return b.session }

// Storage returns the bound session storage, possibly nil.
func (b *authBase) Storage() session.Storage { return b.storage }

// AccessToken returns the session token. It fails with ErrSessionUnavailable or
// ErrTokenExpired.
func (b *authBase) AccessToken() (string, error) {
	if b.session == nil {
		return "", ErrSessionUnavailable
	}
	if b.session.IsExpired() {
		return "", ErrTokenExpired
	}
	return b.session.AccessToken, nil
}

func (b *authBase) AppAccessToken() string { return b.app.AppAccessToken() }

func (b *authBase) Expires() time.Time {
	if b.session == nil {
		return time.Time{}
	}
	return b.session.ExpiresAt
}

// APIClient returns a client bound to the session token. The client is rebuilt only
// when the token changes.
func (b *authBase) APIClient() (*graphapi.Client, error) {
	token, err := b.AccessToken()
	if err != nil {
		return nil, err
	}
	if b.apiClient != nil && b.apiToken == token {
		return b.apiClient, nil
	}
	c, err := b.app.NewAPIClient(token)
	if err != nil {
		return nil, err
	}
	b.apiClient, b.apiToken = c, token
	return c, nil
}

// AppAPIClient returns a client bound to the application token.
func (b *authBase) AppAPIClient() (*graphapi.Client, error) {
	if b.appAPIClient != nil {
		return b.appAPIClient, nil
	}
	c, err := b.app.NewAPIClient(b.AppAccessToken())
	if err != nil {
		return nil, err
	}
	b.appAPIClient = c
	return c, nil
}

// LogoutURL returns the web logout URL carrying next and the session token.
func (b *authBase) LogoutURL(next string) (string, error) {
	u, err := parseNext(next)
	if err != nil {
		return "", err
	}
	token, err := b.AccessToken()
	if err != nil {
		return "", err
	}
	return transport.AppendQuery(b.app.config.Endpoints.WebURL+"/logout.php", map[string]string{
		"next":         StripProhibitedKeys(u),
		"access_token": token,
	}), nil
}

// restore loads the stored session and re-verifies it when the storage is not
// trusted. It reports whether the result must be written back.
func (b *authBase) restore(ctx context.Context) (*session.Session, bool) {
	if b.storage == nil {
		return nil, true
	}

	s, err := b.storage.Load(ctx)
	if err != nil {
		b.app.metrics.Inc(MetricStorageError)
		b.report(ctx, fmt.Errorf("load session: %w", err))
		return nil, true
	}
	if s == nil {
		return nil, true
	}

	if !b.storage.IsSecure() && !s.Verify(b.app.config.AppSecret) {
		b.app.metrics.Inc(MetricSessionDiscarded)
		b.app.logger.WarnContext(ctx, "stored session failed signature check", "flow", b.flow)
		b.emitAudit(ctx, auditEventSessionDiscarded, false, s.UserID, ErrSignatureMismatch, nil)
		return nil, true
	}

	b.app.metrics.Inc(MetricSessionRestored)
	b.emitAudit(ctx, auditEventSessionRestored, true, s.UserID, nil, nil)
	return s, false
}

// persist writes the current session, or deletes the stored one when it is nil.
func (b *authBase) persist(ctx context.Context) error {
	if b.storage == nil {
		return nil
	}
	if err := b.storage.Save(ctx, b.session); err != nil {
		b.app.metrics.Inc(MetricStorageError)
		return fmt.Errorf("save session: %w", err)
	}
	if b.session == nil {
		b.app.metrics.Inc(MetricSessionCleared)
	} else {
		b.app.metrics.Inc(MetricSessionSaved)
	}
	return nil
}

// report routes a swallowed error to the exception sink.
func (b *authBase) report(ctx context.Context, err error) {
	if expired(err) {
		b.app.logger.DebugContext(ctx, "swallowed error", "flow", b.flow, "error", err)
	} else {
		b.app.logger.WarnContext(ctx, "swallowed error", "flow", b.flow, "error", err)
	}
	if b.sink != nil {
		b.sink(err)
	}
}

func (b *authBase) emitAudit(ctx context.Context, eventType string, success bool, userID int64, err error, metadata func() map[string]string) {
	b.app.emitAudit(ctx, eventType, b.flow, success, userID, err, metadata)
}

// loginParams converts opts into wire parameters. permKey names the permissions
// parameter of the flow.
func loginParams(opts *LoginOptions, permKey string, withCancel bool) map[string]string {
	p := make(map[string]string)
	if opts == nil {
		return p
	}
	if withCancel && opts.CancelURL != "" {
		p["cancel_url"] = opts.CancelURL
	}
	if len(opts.Permissions) > 0 {
		p[permKey] = strings.Join(opts.Permissions, ",")
	}
	if opts.Display != DisplayNotSet {
		p["display"] = strings.ToLower(string(opts.Display))
	}
	for k, v := range opts.Params {
		p[k] = v
	}
	return p
}
