package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goGraph "github.com/MrEthical07/goGraph"
)

// Flow selects the auth context a guard creates.
type Flow uint8

const (
	// FlowCanvas authenticates pages rendered in the canvas frame.
	FlowCanvas Flow = iota + 1
	// FlowOAuth authenticates through the authorization-code flow.
	FlowOAuth
)

// P3PHeader lets browsers keep third-party cookies inside the canvas frame.
const P3PHeader = `CP="CAO PSA OUR"`

type authContextKey struct{}

// AuthContextFromContext returns the auth context the guard established.
func AuthContextFromContext(ctx context.Context) (goGraph.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(goGraph.AuthContext)
	return auth, ok
}

// Option tunes a guard.
type Option func(*guardOptions)

type guardOptions struct {
	login    *goGraph.LoginOptions
	optional bool
	onError  func(http.ResponseWriter, *http.Request, error)
}

// WithLoginOptions sets the permissions and display of the login redirect.
func WithLoginOptions(opts *goGraph.LoginOptions) Option {
	return func(o *guardOptions) { o.login = opts }
}

// WithOptional lets anonymous requests through instead of redirecting them to login.
func WithOptional() Option {
	return func(o *guardOptions) { o.optional = true }
}

// WithErrorHandler replaces the default 401 response for authentication failures.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) Option {
	return func(o *guardOptions) { o.onError = fn }
}

// Guard authenticates every request with a fresh auth context of flow. Anonymous
// requests are sent to the login URL; authenticated ones carry the context and a
// goGraph.Identity.
func Guard(app *goGraph.App, flow Flow, opts ...Option) func(http.Handler) http.Handler {
	o := guardOptions{onError: unauthorized}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if app == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goGraph.WithClientIP(r.Context(), clientIP(r))
			ctx = goGraph.WithUserAgent(ctx, r.UserAgent())
			r = r.WithContext(ctx)

			auth, ok, err := authenticate(ctx, app, flow, w, r)
			if err != nil {
				app.Logger().InfoContext(ctx, "request authentication failed", "error", err)
				o.onError(w, r, err)
				return
			}

			if !ok && !o.optional {
				redirectToLogin(ctx, app, flow, auth, &o, w, r)
				return
			}

			ctx = context.WithValue(ctx, authContextKey{}, auth)
			ctx = goGraph.WithIdentity(ctx, goGraph.NewIdentity(auth))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(ctx context.Context, app *goGraph.App, flow Flow, w http.ResponseWriter, r *http.Request) (goGraph.AuthContext, bool, error) {
	switch flow {
	case FlowCanvas:
		c, err := app.Canvas(w, r)
		if err != nil {
			return nil, false, err
		}
		w.Header().Set("P3P", P3PHeader)
		ok, err := c.Authenticate(ctx, r)
		return c, ok && c.IsAuthenticated(), err
	case FlowOAuth:
		oc, err := app.OAuth(w, r)
		if err != nil {
			return nil, false, err
		}
		ok, err := oc.AuthenticateRequest(ctx, r)
		return oc, ok && oc.IsAuthenticated(), err
	default:
		return nil, false, goGraph.ErrNotSupported
	}
}

func redirectToLogin(ctx context.Context, app *goGraph.App, flow Flow, auth goGraph.AuthContext, o *guardOptions, w http.ResponseWriter, r *http.Request) {
	target, err := auth.LoginURL(goGraph.CurrentURL(r), o.login)
	if err != nil {
		app.Logger().WarnContext(ctx, "login url unavailable", "error", err)
		o.onError(w, r, err)
		return
	}

	if flow == FlowCanvas {
		if err := goGraph.RedirectFromFrame(w, target); err != nil {
			app.Logger().WarnContext(ctx, "frame redirect failed", "error", err)
		}
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
