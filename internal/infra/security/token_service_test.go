package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/expense-iam/internal/core/domain"
)

func testSecret(n int) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("k"), n))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestTokenService(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret(32), time.Hour, WithTokenClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	return svc
}

func TestTokenServiceRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if !claims.IssuedAt.Equal(clock.now) {
		t.Fatalf("unexpected iat %s", claims.IssuedAt)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != time.Hour {
		t.Fatalf("expected exp - iat = 1h, got %s", got)
	}
	if !svc.IsValid(token) {
		t.Fatal("expected freshly issued token to be valid")
	}
}

func TestTokenServiceExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	exp, err := svc.ExpiryOf(token)
	if err != nil {
		t.Fatalf("ExpiryOf returned error: %v", err)
	}

	clock.now = exp.Add(-time.Second)
	if !svc.IsValid(token) {
		t.Fatal("expected token to be valid one second before expiry")
	}

	clock.now = exp
	if svc.IsValid(token) {
		t.Fatal("expected token to be invalid at expiry")
	}

	clock.now = exp.Add(time.Minute)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected expired token to still verify, got %v", err)
	}
	if svc.IsValid(token) {
		t.Fatal("expected expired token to be invalid")
	}
}

func TestTokenServiceRejectsForeignSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	svc := newTestTokenService(t, clock)

	other, err := NewTokenService(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 32)), time.Hour, WithTokenClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	token, err := other.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if svc.IsValid(token) {
		t.Fatal("expected token signed with another key to be invalid")
	}
}

func TestTokenServiceRejectsMalformedTokens(t *testing.T) {
	svc := newTestTokenService(t, &fakeClock{now: time.Now().UTC()})

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := svc.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
		if svc.IsValid(token) {
			t.Fatalf("expected %q to be invalid", token)
		}
	}
}

func TestTokenServiceRequiresIssuedAtAndExpiry(t *testing.T) {
	svc := newTestTokenService(t, &fakeClock{now: time.Now().UTC()})

	key, _ := base64.StdEncoding.DecodeString(testSecret(32))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice@example.com"}).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for token without iat/exp, got %v", err)
	}
}

func TestTokenServiceRejectsUnexpectedAlgorithm(t *testing.T) {
	now := time.Now().UTC()
	svc, err := NewTokenService(testSecret(64), time.Hour, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}

	key, _ := base64.StdEncoding.DecodeString(testSecret(64))
	claims := jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected HS256 token to be rejected by HS512 service, got %v", err)
	}
}

func TestTokenServiceAlgorithmFollowsKeySize(t *testing.T) {
	cases := map[int]string{32: "HS256", 47: "HS256", 48: "HS384", 63: "HS384", 64: "HS512", 96: "HS512"}
	for size, alg := range cases {
		svc, err := NewTokenService(testSecret(size), time.Minute)
		if err != nil {
			t.Fatalf("NewTokenService(%d bytes) returned error: %v", size, err)
		}
		token, err := svc.Issue("alice@example.com")
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
		if err != nil {
			t.Fatalf("ParseUnverified returned error: %v", err)
		}
		if parsed.Method.Alg() != alg {
			t.Fatalf("key of %d bytes: expected %s, got %s", size, alg, parsed.Method.Alg())
		}
	}
}

func TestNewTokenServiceConfigurationErrors(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"not base64":   "%%%not-base64%%%",
		"short key":    testSecret(31),
		"blank spaces": "   ",
	}
	for name, secret := range cases {
		_, err := NewTokenService(secret, time.Hour)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Setting != signingSecretSetting {
			t.Fatalf("%s: expected ConfigurationError for %s, got %v", name, signingSecretSetting, err)
		}
	}

	if _, err := NewTokenService(testSecret(32), 0); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for zero validity, got %v", err)
	}
}

func TestZeroValueTokenServiceFailsClosed(t *testing.T) {
	var svc TokenService
	if _, err := svc.Issue("alice@example.com"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration from zero-value Issue, got %v", err)
	}
	if svc.IsValid("anything") {
		t.Fatal("expected zero-value service to reject tokens")
	}
}
