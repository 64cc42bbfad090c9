package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goGraph/signature"
	"github.com/MrEthical07/goGraph/variant"
	"golang.org/x/oauth2"
)

// Flat map keys of a session.
const (
	KeyUserID      = "uid"
	KeyAccessToken = "access_token"
	KeyExpires     = "expires"
	KeySecret      = "secret"
	KeySessionKey  = "session_key"
	KeySignature   = signature.SigKey
)

// NeverExpires marks a session granted permanent access. It encodes as expires=0.
var NeverExpires = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)

// ErrInvalidSession is returned when a flat map cannot describe a session.
var ErrInvalidSession = errors.New("invalid session")

// Session is an authenticated user record. A Session is never mutated after creation;
// WithSignature and Sign return copies.
type Session struct {
	UserID      int64
	AccessToken string
	ExpiresAt   time.Time
	Signature   string
	Secret      string
	// SessionKey is kept for older clients that still send it.
	SessionKey string
}

// IsExpired reports whether the session is past its expiry. A nil session is expired.
func (s *Session) IsExpired() bool {
	if s == nil {
		return true
	}
	return time.Now().After(s.ExpiresAt)
}

// Permanent reports whether the session carries the NeverExpires sentinel.
func (s *Session) Permanent() bool {
	return s != nil && s.ExpiresAt.Equal(NeverExpires)
}

// TTL returns the time left before expiry, 0 for permanent or expired sessions.
func (s *Session) TTL() time.Duration {
	if s == nil || s.Permanent() {
		return 0
	}
	d := time.Until(s.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// ToMap renders the session as its flat wire map.
func (s *Session) ToMap() map[string]string {
	m := make(map[string]string, 6)
	if s.UserID != 0 {
		m[KeyUserID] = strconv.FormatInt(s.UserID, 10)
	}
	if s.AccessToken != "" {
		m[KeyAccessToken] = s.AccessToken
	}
	if !s.ExpiresAt.IsZero() {
		m[KeyExpires] = encodeExpires(s.ExpiresAt)
	}
	if s.Secret != "" {
		m[KeySecret] = s.Secret
	}
	if s.SessionKey != "" {
		m[KeySessionKey] = s.SessionKey
	}
	if s.Signature != "" {
		m[KeySignature] = s.Signature
	}
	return m
}

// FromMap is the inverse of ToMap. expires=0 decodes to NeverExpires.
func FromMap(m map[string]string) (*Session, error) {
	s := &Session{
		AccessToken: m[KeyAccessToken],
		Secret:      m[KeySecret],
		SessionKey:  m[KeySessionKey],
		Signature:   m[KeySignature],
	}

	if raw, ok := m[KeyUserID]; ok && raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: uid %q: %w", ErrInvalidSession, raw, variant.ErrTypeMismatch)
		}
		s.UserID = uid
	}

	if raw, ok := m[KeyExpires]; ok && raw != "" {
		exp, err := decodeExpires(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: expires %q: %w", ErrInvalidSession, raw, variant.ErrTypeMismatch)
		}
		s.ExpiresAt = exp
	}

	return s, nil
}

// FromValue builds a session from a parsed dictionary.
func FromValue(v *variant.Value) (*Session, error) {
	if !v.IsDictionary() {
		return nil, fmt.Errorf("%w: expected a dictionary, got %s", ErrInvalidSession, v.Kind())
	}
	return FromMap(v.StringMap())
}

// WithSignature returns a copy of s carrying sig.
func (s *Session) WithSignature(sig string) *Session {
	out := *s
	out.Signature = sig
	return &out
}

// Sign returns a copy of s signed with secret.
func (s *Session) Sign(secret string) *Session {
	return s.WithSignature(signature.Generate(s.ToMap(), secret))
}

// Verify reports whether the stored signature matches the session content.
func (s *Session) Verify(secret string) bool {
	if s == nil || s.Signature == "" {
		return false
	}
	return signature.Generate(s.ToMap(), secret) == s.Signature
}

// OAuth2Token exposes the session as an oauth2 token. Permanent sessions carry a zero
// expiry, which oauth2 treats as never expiring.
func (s *Session) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
	}
	if !s.Permanent() {
		tok.Expiry = s.ExpiresAt
	}
	return tok
}

func encodeExpires(t time.Time) string {
	if t.Equal(NeverExpires) {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func decodeExpires(raw string) (time.Time, error) {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return ExpiresFromUnix(sec), nil
}

// ExpiresFromUnix converts a wire expiry in Unix seconds; 0 means NeverExpires.
func ExpiresFromUnix(sec int64) time.Time {
	if sec == 0 {
		return NeverExpires
	}
	return time.Unix(sec, 0).UTC()
}
