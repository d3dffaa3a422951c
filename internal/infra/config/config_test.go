package config

import (
	"errors"
	"testing"
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
)

const testSecret = "a2tra2tra2tra2tra2tra2tra2tra2tra2tra2tra2s="

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.JWT.TokenValidity() != time.Hour {
		t.Fatalf("expected 60 minute validity, got %s", cfg.JWT.TokenValidity())
	}
	policy := cfg.Lockout.Policy()
	if policy != domain.DefaultLockoutPolicy() {
		t.Fatalf("expected default lockout policy, got %+v", policy)
	}
	if cfg.Revocation.Backend != RevocationBackendPostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.Revocation.Backend)
	}
	if cfg.Revocation.KeyPrefix != "expense:revoked" || cfg.Revocation.PruneInterval != time.Hour {
		t.Fatalf("unexpected revocation settings: %+v", cfg.Revocation)
	}
	if cfg.Admin.Enabled() {
		t.Fatalf("expected admin bootstrap to be off by default")
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected listen address %s", cfg.App.Addr())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", testSecret)
	t.Setenv("EXPENSE_JWT_TOKEN_VALIDITY_MINUTES", "15")
	t.Setenv("EXPENSE_LOCKOUT_THRESHOLD", "3")
	t.Setenv("EXPENSE_LOCKOUT_DURATION", "30m")
	t.Setenv("EXPENSE_LOCKOUT_FAILURE_WINDOW", "10m")
	t.Setenv("EXPENSE_REVOCATION_BACKEND", "Redis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.JWT.TokenValidity() != 15*time.Minute {
		t.Fatalf("expected 15 minute validity, got %s", cfg.JWT.TokenValidity())
	}
	want := domain.LockoutPolicy{Threshold: 3, Duration: 30 * time.Minute, FailureWindow: 10 * time.Minute}
	if cfg.Lockout.Policy() != want {
		t.Fatalf("expected %+v, got %+v", want, cfg.Lockout.Policy())
	}
	if cfg.Revocation.Backend != RevocationBackendRedis {
		t.Fatalf("expected normalized redis backend, got %q", cfg.Revocation.Backend)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", "")

	_, err := Load()
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Setting != "jwt.signing_secret" {
		t.Fatalf("expected ConfigurationError for jwt.signing_secret, got %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", testSecret)
	t.Setenv("EXPENSE_REVOCATION_BACKEND", "etcd")

	if _, err := Load(); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadAdminBootstrap(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", testSecret)
	t.Setenv("EXPENSE_ADMIN_EMAIL", "admin@expenses.example.com")
	t.Setenv("EXPENSE_ADMIN_PASSWORD", "C0mplex!Passphrase#2025")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Admin.Enabled() || cfg.Admin.Email != "admin@expenses.example.com" {
		t.Fatalf("expected admin bootstrap to be enabled, got %+v", cfg.Admin)
	}
}

func TestLoadRejectsHalfConfiguredAdmin(t *testing.T) {
	t.Setenv("EXPENSE_JWT_SIGNING_SECRET", testSecret)
	t.Setenv("EXPENSE_ADMIN_EMAIL", "admin@expenses.example.com")
	t.Setenv("EXPENSE_ADMIN_PASSWORD", "")

	_, err := Load()
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Setting != "admin" {
		t.Fatalf("expected ConfigurationError for admin, got %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	s := PostgresSettings{Host: "db", Port: 5432, User: "expense", Password: "p@ss", Database: "expense", SSLMode: "disable"}
	if got := s.DSN(); got != "postgres://expense:p%40ss@db:5432/expense?sslmode=disable" {
		t.Fatalf("unexpected dsn %s", got)
	}
}
