package goGraph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrEthical07/goGraph/async"
	"github.com/MrEthical07/goGraph/graphapi"
	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/transport"
	"github.com/MrEthical07/goGraph/variant"
)

// OAuthContext authenticates requests through the authorization-code flow.
//
// A request carrying a code parameter is exchanged for a token; any other request is
// restored from storage. An OAuthContext belongs to one request.
type OAuthContext struct {
	authBase
}

var _ AuthContext = (*OAuthContext)(nil)

// UserID always fails with ErrNotSupported: the token endpoint never returns the user.
// Fetch the profile through APIClient instead.
func (o *OAuthContext) UserID() (int64, error) {
	return 0, ErrNotSupported
}

// LoginURL returns the authorize URL redirecting back to next.
func (o *OAuthContext) LoginURL(next string, opts *LoginOptions) (string, error) {
	return o.LoginURLWithParams(next, loginParams(opts, "scope", false))
}

// LoginURLWithParams is LoginURL with raw parameters merged over the defaults.
func (o *OAuthContext) LoginURLWithParams(next string, params map[string]string) (string, error) {
	u, err := parseNext(next)
	if err != nil {
		return "", err
	}

	p := map[string]string{
		"client_id":    o.app.config.AppID,
		"redirect_uri": StripProhibitedKeys(u),
	}
	for k, v := range params {
		p[k] = v
	}

	return transport.AppendQuery(o.app.config.Endpoints.OAuth.AuthURL, p), nil
}

// AuthenticateRequest establishes the session of r and reports whether it is live.
// Code exchange failures are returned; storage failures are routed to the sink.
func (o *OAuthContext) AuthenticateRequest(ctx context.Context, r *http.Request) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = r.Context()
	}

	save := true
	if code := r.URL.Query().Get(ParamCode); code != "" {
		if err := o.Authenticate(ctx, code, redirectURI(r)); err != nil {
			return false, err
		}
	} else {
		o.session, save = o.restore(ctx)
	}

	if save {
		if err := o.persist(ctx); err != nil {
			o.app.metrics.Inc(MetricOAuthAuthFailure)
			return false, err
		}
	}

	return o.IsAuthenticated(), nil
}

// Authenticate exchanges code for a token. redirectURI must equal the one the code was
// issued for.
func (o *OAuthContext) Authenticate(ctx context.Context, code, redirectURI string) error {
	if err := checkExchangeArgs(code, redirectURI); err != nil {
		return err
	}

	resp, err := o.app.transport.Do(ctx, o.app.config.Endpoints.OAuth.TokenURL, transport.POST, o.exchangeArgs(code, redirectURI))
	if err == nil {
		err = o.applyAuthResult(resp)
	}
	o.finishExchange(ctx, err)
	return err
}

// BeginAuthenticateRequest is the asynchronous AuthenticateRequest. The future
// completes with IsAuthenticated once the session has been persisted.
func (o *OAuthContext) BeginAuthenticateRequest(ctx context.Context, r *http.Request, cb async.Callback[bool]) *async.Future[bool] {
	if r == nil {
		return async.Completed(false, fmt.Errorf("%w: nil request", ErrInvalidArgument), cb)
	}
	if ctx == nil {
		ctx = r.Context()
	}

	if code := r.URL.Query().Get(ParamCode); code != "" {
		exchange := o.BeginAuthenticate(ctx, code, redirectURI(r), nil)
		return async.Then(ctx, exchange, func(ctx context.Context, _ bool) (bool, error) {
			if err := o.persist(ctx); err != nil {
				o.app.metrics.Inc(MetricOAuthAuthFailure)
				return false, err
			}
			return o.IsAuthenticated(), nil
		}, cb, o.sink)
	}

	var save bool
	o.session, save = o.restore(ctx)
	if save {
		if err := o.persist(ctx); err != nil {
			o.app.metrics.Inc(MetricOAuthAuthFailure)
			return async.Completed(false, err, cb)
		}
	}
	return async.Completed(o.IsAuthenticated(), nil, cb)
}

// BeginAuthenticate is the asynchronous Authenticate. The future completes with
// IsAuthenticated after the token response has been applied.
func (o *OAuthContext) BeginAuthenticate(ctx context.Context, code, redirectURI string, cb async.Callback[bool]) *async.Future[bool] {
	if err := checkExchangeArgs(code, redirectURI); err != nil {
		return async.Completed(false, err, cb)
	}

	pending := o.app.transport.Begin(ctx, o.app.config.Endpoints.OAuth.TokenURL, transport.POST, o.exchangeArgs(code, redirectURI), nil)
	return async.Finally(ctx, pending, func(ctx context.Context, resp *transport.Response, err error) (bool, error) {
		if err == nil {
			err = o.applyAuthResult(resp)
		}
		o.finishExchange(ctx, err)
		if err != nil {
			return false, err
		}
		return o.IsAuthenticated(), nil
	}, cb, o.sink)
}

func checkExchangeArgs(code, redirectURI string) error {
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidArgument)
	}
	if redirectURI == "" {
		return fmt.Errorf("%w: redirect uri is required", ErrInvalidArgument)
	}
	return nil
}

func (o *OAuthContext) exchangeArgs(code, redirectURI string) map[string]string {
	return map[string]string{
		"client_id":     o.app.config.AppID,
		"client_secret": o.app.config.AppSecret,
		"redirect_uri":  redirectURI,
		"code":          code,
	}
}

func (o *OAuthContext) finishExchange(ctx context.Context, err error) {
	o.app.metrics.Inc(MetricCodeExchange)
	if err != nil {
		o.app.metrics.Inc(MetricOAuthAuthFailure)
		o.app.logger.InfoContext(ctx, "code exchange failed", "error", err)
		o.emitAudit(ctx, auditEventCodeExchangeFailure, false, 0, err, nil)
		return
	}
	o.app.metrics.Inc(MetricOAuthAuthSuccess)
	o.emitAudit(ctx, auditEventCodeExchangeSuccess, true, 0, nil, nil)
}

// applyAuthResult turns a token endpoint response into the current session.
func (o *OAuthContext) applyAuthResult(resp *transport.Response) error {
	s, err := parseTokenResponse(resp, time.Now())
	if err != nil {
		return err
	}
	o.session = s.Sign(o.app.config.AppSecret)
	return nil
}

// parseTokenResponse reads a token endpoint response. A text/plain body is a form
// with access_token and expires in seconds from now; a missing or zero expires means
// the grant does not expire. A JSON body is always an error.
func parseTokenResponse(resp *transport.Response, now time.Time) (*session.Session, error) {
	switch resp.MediaType() {
	case "text/plain":
		form, err := url.ParseQuery(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		token := form.Get("access_token")
		if token == "" {
			return nil, fmt.Errorf("%w: no access_token in %q", ErrUnexpectedResponse, truncate(resp.Body))
		}

		expiresAt := session.NeverExpires
		if raw := form.Get("expires"); raw != "" {
			secs, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: expires %q", ErrUnexpectedResponse, raw)
			}
			if secs != 0 {
				expiresAt = now.Add(time.Duration(secs) * time.Second).UTC().Truncate(time.Second)
			}
		}
		return &session.Session{AccessToken: token, ExpiresAt: expiresAt}, nil

	default:
		if resp.IsJSON() {
			v, err := variant.Parse(resp.Body)
			if err != nil {
				return nil, err
			}
			if err := graphapi.CheckError(v); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %s %q", ErrUnexpectedResponse, resp.ContentType, truncate(resp.Body))
	}
}

func truncate(s string) string {
	const max = 128
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
