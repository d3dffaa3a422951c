package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrPrincipalNotFound indicates no principal matches the identifier.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrAccountLocked indicates the account is locked after repeated failures.
	ErrAccountLocked = errors.New("account locked")
	// ErrAuthenticationFailed is the umbrella for credential and token rejections.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled indicates the principal is inactive.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken indicates a token failed structural or signature checks, or has expired.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrConfiguration indicates a required setting is absent or unusable.
	ErrConfiguration = errors.New("invalid configuration")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown principal. Transports must not reveal it to callers.
type NotFoundError struct {
	Email string
}

func (e *NotFoundError) Error() string {
	return "principal not found"
}

func (e *NotFoundError) Unwrap() error { return ErrPrincipalNotFound }

// AccountLockedError carries the instant the lock lifts.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// AuthenticationError is a credential or token rejection. Reason is one of
// ErrInvalidCredentials, ErrAccountDisabled or ErrInvalidToken.
type AuthenticationError struct {
	Reason  error
	Message string
}

func NewAuthenticationError(reason error) *AuthenticationError {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return &AuthenticationError{Reason: reason, Message: msg}
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrAuthenticationFailed.Error()
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrAuthenticationFailed}
	}
	return []error{ErrAuthenticationFailed, e.Reason}
}

// ConfigurationError reports an unusable setting.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration %s is invalid", e.Setting)
	}
	return fmt.Sprintf("configuration %s is invalid: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}
