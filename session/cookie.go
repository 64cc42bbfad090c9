package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGraph/transport"
)

// CookiePrefix precedes the application id in the session cookie name.
const CookiePrefix = "gs_"

const deletedCookieValue = "deleted"

// CookieName returns the session cookie name of an application.
func CookieName(appID string) string {
	return CookiePrefix + appID
}

// EncodeCookie renders s as `"` + sorted, percent-encoded key=value pairs + `"`.
func EncodeCookie(s *Session) string {
	return `"` + transport.EncodeArgs(s.ToMap()) + `"`
}

// DecodeCookie is the inverse of EncodeCookie. The surrounding quotes are optional
// because net/http strips them when parsing request cookies.
func DecodeCookie(value string) (*Session, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
	if inner == "" {
		return nil, fmt.Errorf("%w: empty cookie", ErrInvalidSession)
	}
	values, err := url.ParseQuery(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	m := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return FromMap(m)
}

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithCookieDomain scopes the cookie to a base domain.
func WithCookieDomain(domain string) CookieOption {
	return func(c *CookieStore) { c.domain = domain }
}

// WithCookieName overrides CookieName(appID).
func WithCookieName(name string) CookieOption {
	return func(c *CookieStore) { c.name = name }
}

// CookieStore keeps the session in a client-owned cookie. The client can edit it, so
// auth contexts re-verify its signature on every read.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	name   string
	domain string
	now    func() time.Time
}

// NewCookieStore binds a cookie store to one request.
func NewCookieStore(w http.ResponseWriter, r *http.Request, appID string, opts ...CookieOption) *CookieStore {
	c := &CookieStore{
		w:    w,
		r:    r,
		name: CookieName(appID),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// CookieFactory returns a Factory producing cookie stores.
func CookieFactory(appID string, opts ...CookieOption) Factory {
	return func(w http.ResponseWriter, r *http.Request) Storage {
		return NewCookieStore(w, r, appID, opts...)
	}
}

// Name returns the cookie name.
func (c *CookieStore) Name() string { return c.name }

// IsSecure is always false.
func (c *CookieStore) IsSecure() bool { return false }

// Load reads the session cookie. A missing or deleted cookie yields no session.
func (c *CookieStore) Load(context.Context) (*Session, error) {
	cookie, err := c.r.Cookie(c.name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if cookie.Value == "" || cookie.Value == deletedCookieValue {
		return nil, nil
	}
	return DecodeCookie(cookie.Value)
}

// Save writes s, or expires the cookie when s is nil. Deleting is a no-op when the
// request carried no cookie.
func (c *CookieStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		if _, err := c.r.Cookie(c.name); err != nil {
			return nil
		}
		http.SetCookie(c.w, &http.Cookie{
			Name:    c.name,
			Value:   deletedCookieValue,
			Expires: c.now().Add(-time.Hour),
			MaxAge:  -1,
			Path:    "/",
			Domain:  c.domain,
		})
		return nil
	}

	encoded := EncodeCookie(s)
	http.SetCookie(c.w, &http.Cookie{
		Name:    c.name,
		Value:   encoded[1 : len(encoded)-1],
		Quoted:  true,
		Expires: s.ExpiresAt,
		Path:    "/",
		Domain:  c.domain,
	})
	return nil
}
