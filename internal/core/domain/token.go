package domain

import "time"

// TokenType is the scheme name returned with issued tokens.
const TokenType = "Bearer"

// TokenClaims are the registered claims carried by an access token.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewTokenClaims builds claims for subject valid from issuedAt for validity.
func NewTokenClaims(subject string, issuedAt time.Time, validity time.Duration) TokenClaims {
	return TokenClaims{
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(validity),
	}
}

// IsExpired reports whether the claims have elapsed at the given instant.
func (c TokenClaims) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// RevocationRecord marks a token as no longer acceptable.
type RevocationRecord struct {
	Token     string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// IsExpired reports whether the revoked token would have expired anyway.
func (r RevocationRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// TTL returns the remaining lifetime of the revoked token, never negative.
func (r RevocationRecord) TTL(at time.Time) time.Duration {
	ttl := r.ExpiresAt.Sub(at)
	if ttl < 0 {
		return 0
	}
	return ttl
}
