package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
)

const (
	minSigningKeyBytes      = 32
	signingSecretSetting    = "jwt.signing_secret"
	tokenValiditySetting    = "jwt.token_validity_minutes"
	DefaultTokenValidity    = time.Hour
	hs384MinSigningKeyBytes = 48
	hs512MinSigningKeyBytes = 64
)

var errSigningKeyTooShort = errors.New("signing key must be at least 256 bits")

// TokenService signs and verifies HMAC bearer tokens whose subject is the principal email.
type TokenService struct {
	key      []byte
	method   jwt.SigningMethod
	validity time.Duration
	now      func() time.Time
}

// TokenServiceOption customises a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the clock used for issuance and expiry checks.
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewTokenService decodes the base64 signing secret and fails with a ConfigurationError
// when it is absent, malformed or shorter than 256 bits.
func NewTokenService(secret string, validity time.Duration, opts ...TokenServiceOption) (*TokenService, error) {
	key, err := decodeSigningKey(secret)
	if err != nil {
		return nil, err
	}
	if validity <= 0 {
		return nil, &domain.ConfigurationError{Setting: tokenValiditySetting, Err: errors.New("must be positive")}
	}

	svc := &TokenService{
		key:      key,
		method:   signingMethodFor(key),
		validity: validity,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func decodeSigningKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, &domain.ConfigurationError{Setting: signingSecretSetting, Err: errors.New("not set")}
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: signingSecretSetting, Err: fmt.Errorf("decode base64: %w", err)}
	}
	if len(key) < minSigningKeyBytes {
		return nil, &domain.ConfigurationError{Setting: signingSecretSetting, Err: errSigningKeyTooShort}
	}
	return key, nil
}

// signingMethodFor picks the strongest HMAC variant the key length supports.
func signingMethodFor(key []byte) jwt.SigningMethod {
	switch {
	case len(key) >= hs512MinSigningKeyBytes:
		return jwt.SigningMethodHS512
	case len(key) >= hs384MinSigningKeyBytes:
		return jwt.SigningMethodHS384
	default:
		return jwt.SigningMethodHS256
	}
}

func (s *TokenService) ready() error {
	if s == nil || len(s.key) < minSigningKeyBytes || s.method == nil {
		return &domain.ConfigurationError{Setting: signingSecretSetting, Err: errors.New("token service not configured")}
	}
	return nil
}

func (s *TokenService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

// Validity returns the configured token lifetime.
func (s *TokenService) Validity() time.Duration {
	if s == nil {
		return 0
	}
	return s.validity
}

// Issue signs a token for subject valid from now for the configured lifetime.
func (s *TokenService) Issue(subject string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	claims := domain.NewTokenClaims(subject, s.clock().Truncate(time.Second), s.validity)
	registered := jwt.RegisteredClaims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(s.method, registered).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks structure and signature and returns the claims. Expired tokens verify.
func (s *TokenService) Verify(token string) (domain.TokenClaims, error) {
	if err := s.ready(); err != nil {
		return domain.TokenClaims{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.TokenClaims{}, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	registered := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, registered, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if registered.IssuedAt == nil || registered.ExpiresAt == nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: missing iat or exp", domain.ErrInvalidToken)
	}

	return domain.TokenClaims{
		Subject:   registered.Subject,
		IssuedAt:  registered.IssuedAt.Time.UTC(),
		ExpiresAt: registered.ExpiresAt.Time.UTC(),
	}, nil
}

// IsValid reports whether token verifies and has not expired.
func (s *TokenService) IsValid(token string) bool {
	claims, err := s.Verify(token)
	if err != nil {
		return false
	}
	return !claims.IsExpired(s.clock())
}

// ExpiryOf returns the exp claim of token.
func (s *TokenService) ExpiryOf(token string) (time.Time, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt, nil
}

var _ port.TokenService = (*TokenService)(nil)
