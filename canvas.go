package goGraph

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/signature"
	"github.com/MrEthical07/goGraph/transport"
	"github.com/MrEthical07/goGraph/variant"
)

// Request parameters read by the canvas flow.
const (
	ParamSignedRequest = "signed_request"
	ParamSession       = "session"
	ParamCode          = "code"
)

// CanvasContext authenticates requests rendered inside the platform's canvas frame.
//
// The session comes from, in order: a signed_request parameter, a signed session
// parameter, then storage. A CanvasContext belongs to one request and must not be
// shared between goroutines.
type CanvasContext struct {
	authBase
	signedRequest *variant.Value
}

var _ AuthContext = (*CanvasContext)(nil)

// UserID returns the session user, or 0 when there is no session.
func (c *CanvasContext) UserID() (int64, error) {
	if c.session == nil {
		return 0, nil
	}
	return c.session.UserID, nil
}

// SignedRequest returns the verified signed_request payload of the last
// Authenticate call, or nil.
func (c *CanvasContext) SignedRequest() *variant.Value { return c.signedRequest }

// Authenticate establishes the session of r and reports whether it is live.
//
// Failures of a signed_request or session parameter are returned. Storage failures
// are routed to the exception sink and read as "no session".
func (c *CanvasContext) Authenticate(ctx context.Context, r *http.Request) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = r.Context()
	}

	ok, err := c.authenticate(ctx, r.URL.Query())
	if err != nil {
		c.app.metrics.Inc(MetricCanvasAuthFailure)
		c.app.logger.InfoContext(ctx, "canvas authentication failed", "error", err)
		return false, err
	}
	if ok {
		c.app.metrics.Inc(MetricCanvasAuthSuccess)
	}
	return ok, nil
}

func (c *CanvasContext) authenticate(ctx context.Context, q url.Values) (bool, error) {
	save := true

	s, err := c.fromSignedRequest(ctx, q.Get(ParamSignedRequest))
	if err != nil {
		return false, err
	}

	if s == nil {
		if raw := q.Get(ParamSession); raw != "" {
			if s, err = c.fromSessionParam(ctx, raw); err != nil {
				return false, err
			}
		}
	}

	if s == nil && c.storage != nil {
		s, save = c.restore(ctx)
	}

	c.session = s

	if c.storage != nil && save {
		if err := c.persist(ctx); err != nil {
			return false, err
		}
	}

	return c.IsAuthenticated(), nil
}

// fromSignedRequest verifies raw and converts it to a session. A verified payload
// without oauth_token yields no session.
func (c *CanvasContext) fromSignedRequest(ctx context.Context, raw string) (*session.Session, error) {
	if raw == "" && c.signedRequest == nil {
		return nil, nil
	}

	data := c.signedRequest
	if data == nil {
		v, err := signature.VerifySignedRequest(raw, c.app.config.AppSecret)
		if err != nil {
			c.app.metrics.Inc(MetricSignedRequestRejected)
			c.emitAudit(ctx, auditEventSignedRequestRejected, false, 0, err, nil)
			return nil, err
		}
		c.signedRequest = v
		data = v
	}

	if !data.Has("oauth_token") {
		return nil, nil
	}

	userID, err := optionalInteger(data, "user_id")
	if err != nil {
		return nil, err
	}
	expires, err := optionalInteger(data, "expires")
	if err != nil {
		return nil, err
	}

	s := (&session.Session{
		UserID:      userID,
		AccessToken: data.Get("oauth_token").String(),
		ExpiresAt:   session.ExpiresFromUnix(expires),
	}).Sign(c.app.config.AppSecret)

	c.emitAudit(ctx, auditEventSignedRequestAccepted, true, s.UserID, nil, nil)
	return s, nil
}

// fromSessionParam validates a JSON session parameter. A parameter lacking uid,
// access_token or sig yields no session; a bad signature is an error.
func (c *CanvasContext) fromSessionParam(ctx context.Context, raw string) (*session.Session, error) {
	v, err := variant.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !v.IsDictionary() {
		return nil, fmt.Errorf("%w: session parameter must be a dictionary", ErrInvalidArgument)
	}
	if !v.Has(session.KeyUserID) || !v.Has(session.KeyAccessToken) || !v.Has(session.KeySignature) {
		return nil, nil
	}

	fields := v.StringMap()
	if !signature.Matches(fields, c.app.config.AppSecret) {
		err := fmt.Errorf("%w: session parameter", ErrSignatureMismatch)
		c.emitAudit(ctx, auditEventSessionParamRejected, false, 0, err, nil)
		return nil, err
	}

	s, err := session.FromValue(v)
	if err != nil {
		return nil, err
	}
	c.emitAudit(ctx, auditEventSessionParamAccepted, true, s.UserID, nil, nil)
	// The carried sig may cover keys the session drops; stored copies must verify
	// against ToMap alone.
	return s.Sign(c.app.config.AppSecret), nil
}

// LoginURL returns the web login URL that sends the user back to next.
func (c *CanvasContext) LoginURL(next string, opts *LoginOptions) (string, error) {
	return c.LoginURLWithParams(next, loginParams(opts, "req_perms", true))
}

// LoginURLWithParams is LoginURL with raw parameters merged over the defaults.
func (c *CanvasContext) LoginURLWithParams(next string, params map[string]string) (string, error) {
	u, err := parseNext(next)
	if err != nil {
		return "", err
	}
	stripped := StripProhibitedKeys(u)

	p := map[string]string{
		"api_key":         c.app.config.AppID,
		"cancel_url":      stripped,
		"display":         string(DisplayPage),
		"fbconnect":       "1",
		"next":            stripped,
		"return_session":  "1",
		"session_version": "3",
		"v":               "1.0",
	}
	for k, v := range params {
		p[k] = v
	}

	return transport.AppendQuery(c.app.config.Endpoints.WebURL+"/login.php", p), nil
}

// ResolveSiteURL joins rel onto the configured SiteURL. A leading "~" or "/" in rel
// is ignored.
func (c *CanvasContext) ResolveSiteURL(rel string) string {
	return joinURL(c.app.config.SiteURL, rel)
}

// ResolveCanvasPageURL joins rel onto the configured CanvasPage.
func (c *CanvasContext) ResolveCanvasPageURL(rel string) string {
	return joinURL(c.app.config.CanvasPage, rel)
}

func joinURL(base, rel string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "~/")
}

// RedirectFromFrame writes a script that navigates the top frame to target, or the
// current frame when the page is not framed.
func RedirectFromFrame(w http.ResponseWriter, target string) error {
	if target == "" {
		return fmt.Errorf("%w: redirect target is required", ErrInvalidArgument)
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "-1")

	js := template.JSEscapeString(target)
	_, err := fmt.Fprintf(w, `<script type="text/javascript">if (parent != self) top.location.href = "%s"; else self.location.href = "%s"</script>`, js, js)
	return err
}

func optionalInteger(v *variant.Value, key string) (int64, error) {
	if !v.Has(key) {
		return 0, nil
	}
	n, err := v.Get(key).Integer()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
