package domain

import (
	"context"
	"time"
)

// AuthenticationKind discriminates the outcome of the request gate.
type AuthenticationKind int

const (
	Anonymous AuthenticationKind = iota
	Authenticated
)

func (k AuthenticationKind) String() string {
	if k == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity describes the caller behind a verified bearer token.
type Identity struct {
	PrincipalID    string
	Email          string
	Name           string
	Roles          []string
	TokenExpiresAt time.Time
	// Locked is true while the principal is locked out of login. Issued tokens stay usable.
	Locked bool
}

// HasAnyRole reports whether the identity carries at least one of roles.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Authentication is the per-request result of the gate.
type Authentication struct {
	Kind     AuthenticationKind
	Identity Identity
}

// AnonymousAuthentication returns the unauthenticated value.
func AnonymousAuthentication() Authentication {
	return Authentication{Kind: Anonymous}
}

// AuthenticatedAs wraps identity into an authenticated value.
func AuthenticatedAs(identity Identity) Authentication {
	return Authentication{Kind: Authenticated, Identity: identity}
}

// IsAuthenticated reports whether the caller was authenticated.
func (a Authentication) IsAuthenticated() bool {
	return a.Kind == Authenticated
}

type authenticationKey struct{}

// WithAuthentication stores auth on ctx.
func WithAuthentication(ctx context.Context, auth Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey{}, auth)
}

// AuthenticationFromContext returns the stored value or Anonymous.
func AuthenticationFromContext(ctx context.Context) Authentication {
	if ctx == nil {
		return AnonymousAuthentication()
	}
	if auth, ok := ctx.Value(authenticationKey{}).(Authentication); ok {
		return auth
	}
	return AnonymousAuthentication()
}
