package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGraph "github.com/MrEthical07/goGraph"
	"github.com/MrEthical07/goGraph/signature"
)

const (
	appID     = "777"
	appSecret = "guard-secret"
)

func newApp(t *testing.T, tokenHandler http.Handler) *goGraph.App {
	t.Helper()
	if tokenHandler == nil {
		tokenHandler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(tokenHandler)
	t.Cleanup(srv.Close)

	cfg := goGraph.DefaultConfig()
	cfg.AppID = appID
	cfg.AppSecret = appSecret
	cfg.SiteURL = "https://site.example/"
	cfg.CanvasPage = "https://apps.graph.example/guarded/"
	cfg.Endpoints.OAuth.TokenURL = srv.URL + "/oauth/access_token"

	app, err := goGraph.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithCookieStorage().
		Build()
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

// echo reports the identity the guard attached.
func echo(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthContextFromContext(r.Context())
		require.True(t, ok)
		id := goGraph.IdentityFromContext(r.Context())
		require.NotNil(t, id)
		assert.Same(t, auth, id.AuthContext())

		if !id.IsAuthenticated() {
			_, _ = io.WriteString(w, "anonymous")
			return
		}
		name, err := id.Name()
		if err != nil {
			name = "unknown"
		}
		_, _ = io.WriteString(w, "hello "+name)
	})
}

func TestCanvasGuardAuthenticatesSignedRequest(t *testing.T) {
	app := newApp(t, nil)
	sr, err := signature.SignRequest(map[string]any{"oauth_token": "T", "user_id": "9"}, appSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "https://site.example/canvas/?"+url.Values{"signed_request": {sr}}.Encode(), nil)
	rec := httptest.NewRecorder()
	RequireCanvas(app)(echo(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello 9", rec.Body.String())
	assert.Equal(t, P3PHeader, rec.Header().Get("P3P"))
	assert.NotEmpty(t, rec.Result().Cookies(), "the session must be persisted in a cookie")
}

func TestCanvasGuardRedirectsAnonymousFromFrame(t *testing.T) {
	app := newApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "https://site.example/canvas/?page=2", nil)
	rec := httptest.NewRecorder()
	RequireCanvas(app, WithLoginOptions(&goGraph.LoginOptions{Permissions: []string{"email"}}))(echo(t)).ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "top.location.href")
	assert.Contains(t, body, "login.php")
	assert.Contains(t, body, "req_perms")
}

func TestCanvasGuardRejectsForgedRequest(t *testing.T) {
	app := newApp(t, nil)
	sr, err := signature.SignRequest(map[string]any{"oauth_token": "T"}, "not-the-secret")
	require.NoError(t, err)

	var handled error
	req := httptest.NewRequest(http.MethodGet, "https://site.example/canvas/?"+url.Values{"signed_request": {sr}}.Encode(), nil)
	rec := httptest.NewRecorder()
	Guard(app, FlowCanvas, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		handled = err
		w.WriteHeader(http.StatusForbidden)
	}))(echo(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, handled, goGraph.ErrSignatureMismatch)
}

func TestOAuthGuardRedirectsAnonymous(t *testing.T) {
	app := newApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "https://site.example/home?code=stale", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	rec := httptest.NewRecorder()

	// a stale code still reaches the token endpoint, which fails the exchange
	RequireOAuth(app)(echo(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "https://site.example/home", nil)
	rec = httptest.NewRecorder()
	RequireOAuth(app)(echo(t)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", loc.Path)
	assert.Equal(t, "https://site.example/home", loc.Query().Get("redirect_uri"))
}

func TestOAuthGuardExchangesCode(t *testing.T) {
	app := newApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "access_token=AT&expires=3600")
	}))

	req := httptest.NewRequest(http.MethodGet, "https://site.example/home?code=fresh", nil)
	rec := httptest.NewRecorder()
	RequireOAuth(app)(echo(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// the token endpoint never reveals the user
	assert.Equal(t, "hello unknown", rec.Body.String())
}

func TestOptionalGuardPassesAnonymous(t *testing.T) {
	app := newApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "https://site.example/public", nil)
	rec := httptest.NewRecorder()
	RequireOAuth(app, WithOptional())(echo(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestGuardWithoutApp(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil, FlowOAuth)(echo(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 ,10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestCurrentURLHonoursForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://site.example/a/b?x=1", nil)
	assert.Equal(t, "http://site.example/a/b?x=1", goGraph.CurrentURL(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://site.example/a/b?x=1", goGraph.CurrentURL(req))
}

func TestOAuthGuardBehindTLSProxyUsesOneRedirectURI(t *testing.T) {
	var exchanged string
	app := newApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		exchanged = r.PostForm.Get("redirect_uri")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "access_token=AT&expires=3600")
	}))

	req := httptest.NewRequest(http.MethodGet, "http://site.example/home?tab=1", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	RequireOAuth(app)(echo(t)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	sent := loc.Query().Get("redirect_uri")
	assert.Equal(t, "https://site.example/home?tab=1", sent)

	callback := httptest.NewRequest(http.MethodGet, "http://site.example/home?tab=1&code=fresh", nil)
	callback.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	RequireOAuth(app)(echo(t)).ServeHTTP(rec, callback)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sent, exchanged)
}
