package goGraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGraph/session"
	"github.com/MrEthical07/goGraph/signature"
)

func signedRequestFor(t *testing.T, payload map[string]any, secret string) string {
	t.Helper()
	sr, err := signature.SignRequest(payload, secret)
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return sr
}

func canvasRequest(params url.Values) *http.Request {
	target := "https://apps.example/canvas/"
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func newCanvas(t *testing.T, app *App, r *http.Request, opts ...ContextOption) *CanvasContext {
	t.Helper()
	c, err := app.Canvas(httptest.NewRecorder(), r, opts...)
	if err != nil {
		t.Fatalf("Canvas failed: %v", err)
	}
	return c
}

// sessionParam renders s the way the platform posts a session parameter.
func sessionParam(t *testing.T, s *session.Session) string {
	t.Helper()
	raw, err := json.Marshal(s.ToMap())
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return string(raw)
}

func TestCanvasSignedRequestEstablishesSession(t *testing.T) {
	app := newTestApp(t, nil, nil)
	sr := signedRequestFor(t, map[string]any{
		"oauth_token": "T",
		"user_id":     "42",
		"expires":     0,
	}, testAppSecret)

	r := canvasRequest(url.Values{ParamSignedRequest: {sr}})
	c := newCanvas(t, app, r)

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !ok || !c.IsAuthenticated() {
		t.Fatal("expected an authenticated context")
	}

	uid, err := c.UserID()
	if err != nil || uid != 42 {
		t.Fatalf("expected uid 42, got %d (%v)", uid, err)
	}
	token, err := c.AccessToken()
	if err != nil || token != "T" {
		t.Fatalf("expected token T, got %q (%v)", token, err)
	}
	if !c.Expires().Equal(session.NeverExpires) {
		t.Fatalf("expected NeverExpires, got %v", c.Expires())
	}
	if !c.Session().Verify(testAppSecret) {
		t.Fatal("session built from a signed request must carry a valid signature")
	}
	if c.SignedRequest() == nil || c.SignedRequest().Get("oauth_token").String() != "T" {
		t.Fatal("expected the verified payload to be kept")
	}
	if got := app.Metrics().Value(MetricCanvasAuthSuccess); got != 1 {
		t.Fatalf("expected 1 canvas success, got %d", got)
	}
}

func TestCanvasSignedRequestWithWrongSecretFails(t *testing.T) {
	app := newTestApp(t, nil, nil)
	sr := signedRequestFor(t, map[string]any{"oauth_token": "T", "user_id": "42"}, "other-secret")

	r := canvasRequest(url.Values{ParamSignedRequest: {sr}})
	c := newCanvas(t, app, r)

	ok, err := c.Authenticate(context.Background(), r)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if ok || c.IsAuthenticated() {
		t.Fatal("tampered request must not authenticate")
	}
	if got := app.Metrics().Value(MetricSignedRequestRejected); got != 1 {
		t.Fatalf("expected 1 rejection, got %d", got)
	}
	if got := app.Metrics().Value(MetricCanvasAuthFailure); got != 1 {
		t.Fatalf("expected 1 canvas failure, got %d", got)
	}
}

func TestCanvasSignedRequestWithoutTokenHasNoSession(t *testing.T) {
	app := newTestApp(t, nil, nil)
	sr := signedRequestFor(t, map[string]any{"user": map[string]any{"locale": "en_US"}}, testAppSecret)

	r := canvasRequest(url.Values{ParamSignedRequest: {sr}})
	c := newCanvas(t, app, r)

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if ok {
		t.Fatal("a payload without oauth_token carries no session")
	}
	if c.SignedRequest() == nil {
		t.Fatal("the verified payload must still be exposed")
	}
	if uid, err := c.UserID(); err != nil || uid != 0 {
		t.Fatalf("expected uid 0 without a session, got %d (%v)", uid, err)
	}
}

func TestCanvasSessionParam(t *testing.T) {
	app := newTestApp(t, nil, nil)
	s := (&session.Session{
		UserID:      42,
		AccessToken: "T",
		ExpiresAt:   time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}).Sign(testAppSecret)

	store := &stubStorage{}
	r := canvasRequest(url.Values{ParamSession: {sessionParam(t, s)}})
	c := newCanvas(t, app, r, WithSessionStorage(store))

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil || !ok {
		t.Fatalf("expected session param to authenticate, got %v (%v)", ok, err)
	}
	if uid, _ := c.UserID(); uid != 42 {
		t.Fatalf("expected uid 42, got %d", uid)
	}

	stored, saves := store.snapshot()
	if saves != 1 || stored == nil || stored.AccessToken != "T" {
		t.Fatalf("expected the session to be saved once, got %d saves (%+v)", saves, stored)
	}
}

func TestCanvasSessionParamWithExtraKeysSurvivesCookieRoundTrip(t *testing.T) {
	app := newTestApp(t, nil, nil)
	fields := map[string]string{
		"uid":          "42",
		"access_token": "T",
		"expires":      "0",
		"base_domain":  "site.example",
	}
	fields["sig"] = signature.Generate(fields, testAppSecret)
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal session param: %v", err)
	}

	r := canvasRequest(url.Values{ParamSession: {string(raw)}})
	rec := httptest.NewRecorder()
	c := newCanvas(t, app, r, WithSessionStorage(session.NewCookieStore(rec, r, testAppID)))
	if ok, err := c.Authenticate(context.Background(), r); err != nil || !ok {
		t.Fatalf("expected session param to authenticate, got %v (%v)", ok, err)
	}

	next := canvasRequest(nil)
	for _, cookie := range rec.Result().Cookies() {
		next.AddCookie(cookie)
	}
	restored := newCanvas(t, app, next, WithSessionStorage(session.NewCookieStore(httptest.NewRecorder(), next, testAppID)))
	ok, err := restored.Authenticate(context.Background(), next)
	if err != nil || !ok {
		t.Fatalf("expected the stored session to be restored, got %v (%v)", ok, err)
	}
	if uid, _ := restored.UserID(); uid != 42 {
		t.Fatalf("expected uid 42, got %d", uid)
	}
	if got := app.Metrics().Value(MetricSessionDiscarded); got != 0 {
		t.Fatalf("expected no discarded sessions, got %d", got)
	}
}

func TestCanvasExpiredSignedRequestWithServerStorage(t *testing.T) {
	app := newTestApp(t, nil, nil)
	sr := signedRequestFor(t, map[string]any{
		"oauth_token": "T",
		"user_id":     "42",
		"expires":     time.Now().Add(-time.Hour).Unix(),
	}, testAppSecret)

	backend := session.NewMemoryBackend()
	r := canvasRequest(url.Values{ParamSignedRequest: {sr}})
	rec := httptest.NewRecorder()
	c := newCanvas(t, app, r, WithSessionStorage(session.NewServerStore(backend, rec, r, testAppID)))

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("expired signed request must not fail, got %v", err)
	}
	if ok || c.IsAuthenticated() {
		t.Fatal("expired signed request must not authenticate")
	}
	if backend.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d entries", backend.Len())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no session id cookie must be issued")
	}
}

func TestCanvasSessionParamFailures(t *testing.T) {
	app := newTestApp(t, nil, nil)
	good := (&session.Session{UserID: 42, AccessToken: "T", ExpiresAt: session.NeverExpires}).Sign(testAppSecret)
	forged := good.WithSignature("00000000000000000000000000000000")
	unsigned := &session.Session{UserID: 42, AccessToken: "T", ExpiresAt: session.NeverExpires}

	tests := []struct {
		name    string
		param   string
		wantErr error
	}{
		{"forged signature", sessionParam(t, forged), ErrSignatureMismatch},
		{"not a dictionary", `["uid", 42]`, ErrInvalidArgument},
		{"not json", `{uid`, ErrMalformedPayload},
		{"missing signature", sessionParam(t, unsigned), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := canvasRequest(url.Values{ParamSession: {tt.param}})
			c := newCanvas(t, app, r)

			ok, err := c.Authenticate(context.Background(), r)
			if ok {
				t.Fatal("expected no session")
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCanvasRestoreFromInsecureStorage(t *testing.T) {
	app := newTestApp(t, nil, nil)
	valid := (&session.Session{UserID: 7, AccessToken: "T", ExpiresAt: session.NeverExpires}).Sign(testAppSecret)

	t.Run("valid signature is restored without a save", func(t *testing.T) {
		store := &stubStorage{stored: valid}
		r := canvasRequest(nil)
		c := newCanvas(t, app, r, WithSessionStorage(store))

		ok, err := c.Authenticate(context.Background(), r)
		if err != nil || !ok {
			t.Fatalf("expected restored session, got %v (%v)", ok, err)
		}
		if _, saves := store.snapshot(); saves != 0 {
			t.Fatalf("restored session must not be written back, got %d saves", saves)
		}
	})

	t.Run("bad signature is discarded and cleared", func(t *testing.T) {
		store := &stubStorage{stored: valid.WithSignature("bogus")}
		r := canvasRequest(nil)
		c := newCanvas(t, app, r, WithSessionStorage(store))

		ok, err := c.Authenticate(context.Background(), r)
		if err != nil || ok {
			t.Fatalf("expected no session, got %v (%v)", ok, err)
		}
		stored, saves := store.snapshot()
		if saves != 1 || stored != nil {
			t.Fatalf("expected the stored session to be cleared, got %d saves (%+v)", saves, stored)
		}
	})

	if got := app.Metrics().Value(MetricSessionDiscarded); got != 1 {
		t.Fatalf("expected 1 discarded session, got %d", got)
	}
}

func TestCanvasSecureStorageIsTrusted(t *testing.T) {
	app := newTestApp(t, nil, nil)
	unsigned := &session.Session{UserID: 7, AccessToken: "T", ExpiresAt: session.NeverExpires}
	store := &stubStorage{secure: true, stored: unsigned}

	r := canvasRequest(nil)
	c := newCanvas(t, app, r, WithSessionStorage(store))

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil || !ok {
		t.Fatalf("expected trusted session, got %v (%v)", ok, err)
	}
}

func TestCanvasStorageLoadErrorGoesToSink(t *testing.T) {
	rec := &errorRecorder{}
	app := newTestApp(t, nil, func(b *Builder) { b.WithExceptionSink(rec.sink) })
	loadErr := errors.New("backend down")
	store := &stubStorage{loadErr: loadErr}

	r := canvasRequest(nil)
	c := newCanvas(t, app, r, WithSessionStorage(store))

	ok, err := c.Authenticate(context.Background(), r)
	if err != nil || ok {
		t.Fatalf("load failure must read as no session, got %v (%v)", ok, err)
	}
	errs := rec.all()
	if len(errs) != 1 || !errors.Is(errs[0], loadErr) {
		t.Fatalf("expected the load error in the sink, got %v", errs)
	}
	if got := app.Metrics().Value(MetricStorageError); got != 1 {
		t.Fatalf("expected 1 storage error, got %d", got)
	}
}

func TestCanvasSaveErrorIsReturned(t *testing.T) {
	app := newTestApp(t, nil, nil)
	s := (&session.Session{UserID: 42, AccessToken: "T", ExpiresAt: session.NeverExpires}).Sign(testAppSecret)
	store := &stubStorage{saveErr: errors.New("disk full")}

	r := canvasRequest(url.Values{ParamSession: {sessionParam(t, s)}})
	c := newCanvas(t, app, r, WithSessionStorage(store))

	if _, err := c.Authenticate(context.Background(), r); err == nil {
		t.Fatal("expected the save failure to surface")
	}
}

func TestCanvasRequiresSiteAndCanvasPage(t *testing.T) {
	app := newTestApp(t, nil, func(b *Builder) {
		cfg := testConfig("https://graph.example")
		cfg.SiteURL = ""
		b.WithConfig(cfg)
	})

	_, err := app.Canvas(httptest.NewRecorder(), canvasRequest(nil))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCanvasLoginURL(t *testing.T) {
	app := newTestApp(t, nil, nil)
	c := newCanvas(t, app, canvasRequest(nil))

	raw, err := c.LoginURL("https://site.example/page?x=1&session=abc&code=9", &LoginOptions{
		Permissions: []string{"email", "publish_stream"},
		Display:     DisplayPopup,
	})
	if err != nil {
		t.Fatalf("LoginURL failed: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unparsable login url %q: %v", raw, err)
	}
	if u.Host != "www.graph.example" || u.Path != "/login.php" {
		t.Fatalf("unexpected login endpoint %q", raw)
	}

	q := u.Query()
	want := map[string]string{
		"api_key":         testAppID,
		"next":            "https://site.example/page?x=1",
		"cancel_url":      "https://site.example/page?x=1",
		"display":         "popup",
		"fbconnect":       "1",
		"return_session":  "1",
		"session_version": "3",
		"v":               "1.0",
		"req_perms":       "email,publish_stream",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
}

func TestCanvasLoginURLRejectsRelativeNext(t *testing.T) {
	app := newTestApp(t, nil, nil)
	c := newCanvas(t, app, canvasRequest(nil))

	if _, err := c.LoginURL("/page", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCanvasLogoutURL(t *testing.T) {
	app := newTestApp(t, nil, nil)
	c := newCanvas(t, app, canvasRequest(nil))

	if _, err := c.LogoutURL("https://site.example/"); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable without a session, got %v", err)
	}

	sr := signedRequestFor(t, map[string]any{"oauth_token": "T", "user_id": "42"}, testAppSecret)
	r := canvasRequest(url.Values{ParamSignedRequest: {sr}})
	c = newCanvas(t, app, r)
	if _, err := c.Authenticate(context.Background(), r); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	raw, err := c.LogoutURL("https://site.example/bye?signed_request=x")
	if err != nil {
		t.Fatalf("LogoutURL failed: %v", err)
	}
	want := "https://www.graph.example/logout.php?access_token=T&next=https%3A%2F%2Fsite.example%2Fbye"
	if raw != want {
		t.Fatalf("expected %q, got %q", want, raw)
	}
}

func TestCanvasResolveURLs(t *testing.T) {
	app := newTestApp(t, nil, nil)
	c := newCanvas(t, app, canvasRequest(nil))

	tests := []struct {
		got, want string
	}{
		{c.ResolveSiteURL("~/images/logo.png"), "https://site.example/app/images/logo.png"},
		{c.ResolveSiteURL("/about"), "https://site.example/app/about"},
		{c.ResolveCanvasPageURL("friends"), "https://apps.graph.example/myapp/friends"},
		{c.ResolveCanvasPageURL(""), "https://apps.graph.example/myapp/"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func TestStripProhibitedKeys(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://a.example/p?code=1&session=2&signed_request=3", "https://a.example/p"},
		{"https://a.example/p?b=2&a=1&code=1", "https://a.example/p?a=1&b=2"},
		{"http://a.example:8080/", "http://a.example:8080/"},
		{"https://a.example/p?a=1&b=2&a=3", "https://a.example/p?a=1%2C3&b=2"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		if got := StripProhibitedKeys(u); got != tt.want {
			t.Errorf("StripProhibitedKeys(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedirectFromFrame(t *testing.T) {
	w := httptest.NewRecorder()
	if err := RedirectFromFrame(w, `https://www.graph.example/login.php?next="x"`); err != nil {
		t.Fatalf("RedirectFromFrame failed: %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "top.location.href") || !strings.Contains(body, "self.location.href") {
		t.Fatalf("expected frame-breaking script, got %q", body)
	}
	if strings.Contains(body, `"x"`) {
		t.Fatalf("target must be escaped inside the script, got %q", body)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Fatalf("expected no-cache, got %q", cc)
	}

	if err := RedirectFromFrame(httptest.NewRecorder(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for an empty target, got %v", err)
	}
}
