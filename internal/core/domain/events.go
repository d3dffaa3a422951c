package domain

import "time"

// AccountLockedEvent represents the payload for expense.auth.account_locked messages.
type AccountLockedEvent struct {
	EventID        string
	PrincipalID    string
	Email          string
	FailedAttempts int
	LockedAt       time.Time
	LockedUntil    time.Time
	Metadata       map[string]any
}

// LoginSucceededEvent represents the payload for expense.auth.login_succeeded messages.
type LoginSucceededEvent struct {
	EventID        string
	PrincipalID    string
	Email          string
	LoggedInAt     time.Time
	TokenExpiresAt time.Time
	Metadata       map[string]any
}

// TokenRevokedEvent represents the payload for expense.auth.token_revoked messages.
// Fingerprint is a digest of the token; the raw token is never published.
type TokenRevokedEvent struct {
	EventID     string
	Subject     string
	Fingerprint string
	RevokedAt   time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// PasswordChangedEvent represents the payload for expense.auth.password_changed messages.
type PasswordChangedEvent struct {
	EventID     string
	PrincipalID string
	ChangedAt   time.Time
	ChangedBy   string
	Reset       bool
	Metadata    map[string]any
}
