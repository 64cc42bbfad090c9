package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage persists the session of one request.
type Storage interface {
	// Load returns the stored session, or nil when there is none.
	Load(ctx context.Context) (*Session, error)
	// Save replaces the stored session. A nil session deletes it.
	Save(ctx context.Context, s *Session) error
	// IsSecure reports whether stored sessions can be trusted without re-verification.
	IsSecure() bool
}

// Factory binds a Storage to one request.
type Factory func(w http.ResponseWriter, r *http.Request) Storage

// Backend holds server-side sessions keyed by an opaque id. Implementations must be
// safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// ServerCookiePrefix precedes the application id in the session id cookie name.
const ServerCookiePrefix = "gsid_"

// ServerOption configures a ServerStore.
type ServerOption func(*ServerStore)

// WithServerCookieName overrides the session id cookie name.
func WithServerCookieName(name string) ServerOption {
	return func(s *ServerStore) { s.cookieName = name }
}

// WithSecureCookie marks the session id cookie Secure.
func WithSecureCookie(secure bool) ServerOption {
	return func(s *ServerStore) { s.secureCookie = secure }
}

// WithMaxTTL caps how long a backend keeps a session. Zero keeps it until the session
// expires; permanent sessions are then kept without expiry.
func WithMaxTTL(ttl time.Duration) ServerOption {
	return func(s *ServerStore) { s.maxTTL = ttl }
}

// ServerStore keeps sessions on the server and hands the client only an opaque id in
// an HttpOnly cookie.
type ServerStore struct {
	backend      Backend
	w            http.ResponseWriter
	r            *http.Request
	cookieName   string
	secureCookie bool
	maxTTL       time.Duration
	newID        func() string

	mu sync.Mutex
	id string
}

// NewServerStore binds a server store to one request.
func NewServerStore(backend Backend, w http.ResponseWriter, r *http.Request, appID string, opts ...ServerOption) *ServerStore {
	s := &ServerStore{
		backend:    backend,
		w:          w,
		r:          r,
		cookieName: ServerCookiePrefix + appID,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		if _, perr := uuid.Parse(cookie.Value); perr == nil {
			s.id = cookie.Value
		}
	}
	return s
}

// ServerFactory returns a Factory producing server stores over backend.
func ServerFactory(backend Backend, appID string, opts ...ServerOption) Factory {
	return func(w http.ResponseWriter, r *http.Request) Storage {
		return NewServerStore(backend, w, r, appID, opts...)
	}
}

// IsSecure is always true.
func (s *ServerStore) IsSecure() bool { return true }

// ID returns the current session id, empty when none was issued.
func (s *ServerStore) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Load fetches the session referenced by the id cookie.
func (s *ServerStore) Load(ctx context.Context) (*Session, error) {
	id := s.ID()
	if id == "" {
		return nil, nil
	}
	return s.backend.Get(ctx, id)
}

// Save stores sess under the current id, issuing a new id on first write. A nil or
// already expired sess deletes the stored session and expires the id cookie.
func (s *ServerStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := sess.TTL()
	if sess == nil || (!sess.Permanent() && ttl <= 0) {
		return s.clear(ctx)
	}
	if s.maxTTL > 0 && (ttl == 0 || ttl > s.maxTTL) {
		ttl = s.maxTTL
	}

	issued := false
	if s.id == "" {
		s.id = s.newID()
		issued = true
	}
	if err := s.backend.Set(ctx, s.id, sess, ttl); err != nil {
		if issued {
			s.id = ""
		}
		return err
	}

	if issued {
		http.SetCookie(s.w, &http.Cookie{
			Name:     s.cookieName,
			Value:    s.id,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return nil
}

// clear deletes the stored session, if any. The caller holds s.mu.
func (s *ServerStore) clear(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	if err := s.backend.Delete(ctx, s.id); err != nil {
		return err
	}
	s.id = ""
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the session stored under id, or nil when absent or expired.
func (m *MemoryBackend) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, id)
		}
		m.mu.Unlock()
		return nil, nil
	}
	out := *entry.session
	return &out, nil
}

// Set stores a copy of s. A non-positive ttl keeps it until deleted.
func (m *MemoryBackend) Set(_ context.Context, id string, s *Session, ttl time.Duration) error {
	if id == "" || s == nil {
		return errors.New("memory backend: id and session are required")
	}
	entry := memoryEntry{session: new(Session)}
	*entry.session = *s
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[id] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes id. Deleting a missing id is not an error.
func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
