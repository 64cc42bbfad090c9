package goGraph

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrEthical07/goGraph/session"
)

const (
	testAppID     = "123456"
	testAppSecret = "app-secret"
)

// testConfig points every endpoint at base.
func testConfig(base string) Config {
	cfg := DefaultConfig()
	cfg.AppID = testAppID
	cfg.AppSecret = testAppSecret
	cfg.SiteURL = "https://site.example/app/"
	cfg.CanvasPage = "https://apps.graph.example/myapp/"
	cfg.Endpoints.GraphURL = base + "/graph"
	cfg.Endpoints.RESTURL = base + "/rest"
	cfg.Endpoints.WebURL = "https://www.graph.example"
	cfg.Endpoints.OAuth.AuthURL = "https://graph.example/oauth/authorize"
	cfg.Endpoints.OAuth.TokenURL = base + "/oauth/access_token"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp serves handler as the remote service and returns an App bound to it.
func newTestApp(t *testing.T, handler http.Handler, configure func(*Builder)) *App {
	t.Helper()

	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := New().WithConfig(testConfig(srv.URL)).WithLogger(discardLogger())
	if configure != nil {
		configure(b)
	}
	app, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

// errorRecorder is a concurrency-safe exception sink.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) sink(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// stubStorage is an in-memory session.Storage with a switchable trust level.
type stubStorage struct {
	mu      sync.Mutex
	secure  bool
	stored  *session.Session
	loadErr error
	saveErr error
	saves   int
}

func (s *stubStorage) Load(context.Context) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.loadErr
}

func (s *stubStorage) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored = sess
	return nil
}

func (s *stubStorage) IsSecure() bool { return s.secure }

func (s *stubStorage) snapshot() (*session.Session, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.saves
}
