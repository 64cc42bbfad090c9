package goGraph

import (
	"context"
	"strconv"
)

// AuthenticationType is reported by every Identity.
const AuthenticationType = "Forms"

// Identity is the principal a host attaches to an authenticated request.
type Identity struct {
	auth AuthContext
}

// NewIdentity wraps auth. It returns nil when auth is nil.
func NewIdentity(auth AuthContext) *Identity {
	if auth == nil {
		return nil
	}
	return &Identity{auth: auth}
}

// AuthenticationType returns "Forms".
func (i *Identity) AuthenticationType() string { return AuthenticationType }

// IsAuthenticated reports whether the wrapped context holds a live session.
func (i *Identity) IsAuthenticated() bool {
	return i != nil && i.auth.IsAuthenticated()
}

// Name returns the decimal user id. It fails with ErrNotSupported for contexts
// that do not know the user.
func (i *Identity) Name() (string, error) {
	if i == nil {
		return "", ErrSessionUnavailable
	}
	id, err := i.auth.UserID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// AuthContext returns the wrapped context.
func (i *Identity) AuthContext() AuthContext {
	if i == nil {
		return nil
	}
	return i.auth
}

type identityContextKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the Identity attached by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
