package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goGraph/async"
	"golang.org/x/text/language"
)

func newTestTransport(t *testing.T, opts ...Option) *Transport {
	t.Helper()
	tr, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tr
}

func TestGetEncodesQueryWithoutTrailingSeparator(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/javascript; charset=UTF-8")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	resp, err := tr.Do(context.Background(), srv.URL+"/y", GET, map[string]string{"q": "a b", "a": "1"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if rawQuery != "a=1&q=a+b" {
		t.Fatalf("unexpected query %q", rawQuery)
	}
	if resp.Body != `{"ok":true}` || !resp.IsJSON() {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAppendQuery(t *testing.T) {
	if got := AppendQuery("https://x/y", nil); got != "https://x/y" {
		t.Fatalf("expected untouched url, got %q", got)
	}
	if got := AppendQuery("https://x/y", map[string]string{"q": "a b"}); got != "https://x/y?q=a+b" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := AppendQuery("https://x/y?z=1", map[string]string{"q": "v"}); got != "https://x/y?z=1&q=v" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestPostSendsFormBody(t *testing.T) {
	var body, contentType string
	var length int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		contentType = r.Header.Get("Content-Type")
		length = r.ContentLength
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "access_token=T&expires=10")
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	resp, err := tr.Do(context.Background(), srv.URL, POST, map[string]string{"code": "c", "client_id": "1"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if body != "client_id=1&code=c" {
		t.Fatalf("unexpected body %q", body)
	}
	if length != int64(len(body)) {
		t.Fatalf("expected content length %d, got %d", len(body), length)
	}
	if contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if resp.MediaType() != "text/plain" {
		t.Fatalf("unexpected media type %q", resp.MediaType())
	}
}

func TestAcceptLanguageIsLowerCasedLocale(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()

	tr := newTestTransport(t, WithLocale(language.MustParse("pt-BR")))
	if _, err := tr.Do(context.Background(), srv.URL, GET, nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "pt-br" {
		t.Fatalf("expected pt-br, got %q", got)
	}

	def := newTestTransport(t)
	if def.AcceptLanguage() != "en" {
		t.Fatalf("expected default en, got %q", def.AcceptLanguage())
	}
}

func TestErrorStatusWithJSONBodyIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"OAuthException","message":"bad"}}`)
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	resp, err := tr.Do(context.Background(), srv.URL, GET, nil)
	if err != nil {
		t.Fatalf("expected body, got error %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(resp.Body, "OAuthException") {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestErrorStatusWithoutJSONIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	_, err := tr.Do(context.Background(), srv.URL, GET, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
}

func TestMissingContentTypeIsUnexpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, "raw")
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	if _, err := tr.Do(context.Background(), srv.URL, GET, nil); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := newTestTransport(t, WithTimeout(20*time.Millisecond))
	if _, err := tr.Do(context.Background(), srv.URL, GET, nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr := newTestTransport(t)
	if _, err := tr.Do(context.Background(), addr, GET, nil); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestInvalidArguments(t *testing.T) {
	if _, err := New(WithTimeout(0)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero timeout, got %v", err)
	}

	tr := newTestTransport(t)
	if _, err := tr.Do(context.Background(), "", GET, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty url, got %v", err)
	}
	if _, err := tr.Do(context.Background(), "https://x", Verb("PATCH"), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for verb, got %v", err)
	}
}

func TestBeginEmptyBodyCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "0")
	}))
	defer srv.Close()

	called := make(chan struct{}, 2)
	tr := newTestTransport(t)
	f := tr.Begin(context.Background(), srv.URL, GET, nil, func(*async.Future[*Response]) {
		called <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if resp.Body != "" {
		t.Fatalf("expected empty body, got %q", resp.Body)
	}
	select {
	case <-called:
	case <-ctx.Done():
		t.Fatal("callback did not fire")
	}
	if len(called) != 0 {
		t.Fatal("callback fired more than once")
	}
}

func TestBeginReadsLargeBodyInChunks(t *testing.T) {
	payload := strings.Repeat("x", ChunkSize*3+17)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	resp, err := tr.Begin(context.Background(), srv.URL, GET, nil, nil).Result()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if resp.Body != payload {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(resp.Body))
	}
}

func TestObserverSeesEveryExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()

	var seen atomic.Int32
	tr := newTestTransport(t, WithObserver(func(verb Verb, status int, _ time.Duration, err error) {
		if verb == GET && status == http.StatusOK && err == nil {
			seen.Add(1)
		}
	}))
	for i := 0; i < 3; i++ {
		if _, err := tr.Do(context.Background(), srv.URL, GET, nil); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}
	if seen.Load() != 3 {
		t.Fatalf("expected 3 observations, got %d", seen.Load())
	}
}
