package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/logger"
	"github.com/arklim/expense-iam/internal/infra/security"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
	"github.com/arklim/expense-iam/internal/repository"
)

// LoginInput carries the credentials of a login attempt and request metadata for audit events.
type LoginInput struct {
	Email     string
	Password  string
	ClientIP  string
	UserAgent string
}

// PrincipalSummary is the minimal view of a principal returned after login.
type PrincipalSummary struct {
	ID     string
	Name   string
	Email  string
	Active bool
}

// LoginResult is returned for a successful login.
type LoginResult struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
	Principal PrincipalSummary
}

// AuthService coordinates login, lockout and logout flows.
type AuthService struct {
	principals  port.PrincipalRepository
	revocations port.RevocationStore
	tokens      port.TokenService
	hasher      port.PasswordHasher
	policy      domain.LockoutPolicy
	events      port.EventPublisher
	metrics     *telemetry.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	principals port.PrincipalRepository,
	revocations port.RevocationStore,
	tokens port.TokenService,
	hasher port.PasswordHasher,
	policy domain.LockoutPolicy,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		principals:  principals,
		revocations: revocations,
		tokens:      tokens,
		hasher:      hasher,
		policy:      policy.Normalize(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithEvents attaches an audit event publisher.
func (s *AuthService) WithEvents(events port.EventPublisher) *AuthService {
	s.events = events
	return s
}

// WithMetrics attaches authentication counters.
func (s *AuthService) WithMetrics(metrics *telemetry.AuthMetrics) *AuthService {
	s.metrics = metrics
	return s
}

// Login verifies credentials, applies the lockout policy and issues a token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		s.metrics.LoginAttempt(telemetry.LoginRejected)
		return nil, domain.NewValidationError("email", "email is required")
	}
	if input.Password == "" {
		s.metrics.LoginAttempt(telemetry.LoginRejected)
		return nil, domain.NewValidationError("password", "password is required")
	}

	log := logger.WithContext(ctx, s.logger).With(logger.Email(email))

	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.LoginAttempt(telemetry.LoginInvalidCredentials)
			log.Info("login for unknown principal")
			return nil, &domain.NotFoundError{Email: email}
		}
		s.metrics.LoginAttempt(telemetry.LoginError)
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now()
	if principal.IsLocked(now) {
		s.metrics.LoginAttempt(telemetry.LoginLocked)
		log.Info("login rejected for locked principal", zap.Time("locked_until", *principal.LockedUntil))
		return nil, &domain.AccountLockedError{LockedUntil: *principal.LockedUntil}
	}

	ok, err := s.hasher.Verify(input.Password, principal.PasswordHash)
	if err != nil {
		s.metrics.LoginAttempt(telemetry.LoginError)
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.registerFailure(ctx, log, principal, now, input)
	}

	if principal.HasLockoutState() {
		principal.ResetLockout()
		if err := s.principals.Save(ctx, principal); err != nil {
			s.metrics.LoginAttempt(telemetry.LoginError)
			return nil, fmt.Errorf("reset lockout state: %w", err)
		}
	}

	if !principal.Active {
		s.metrics.LoginAttempt(telemetry.LoginDisabled)
		log.Info("login rejected for disabled principal")
		return nil, domain.NewAuthenticationError(domain.ErrAccountDisabled)
	}

	token, err := s.tokens.Issue(principal.Email)
	if err != nil {
		s.metrics.LoginAttempt(telemetry.LoginError)
		return nil, fmt.Errorf("issue token: %w", err)
	}
	expiresAt := now.Add(s.tokens.Validity())
	if claims, err := s.tokens.Verify(token); err == nil {
		expiresAt = claims.ExpiresAt
	}

	s.metrics.LoginAttempt(telemetry.LoginSucceeded)
	log.Info("login succeeded", zap.String("principal_id", principal.ID))

	if s.events != nil {
		event := domain.LoginSucceededEvent{
			EventID:        uuid.NewString(),
			PrincipalID:    principal.ID,
			Email:          principal.Email,
			LoggedInAt:     now,
			TokenExpiresAt: expiresAt,
			Metadata:       requestMetadata(input),
		}
		if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
			log.Warn("publish login succeeded event failed", zap.Error(err))
		}
	}

	return &LoginResult{
		Token:     token,
		TokenType: domain.TokenType,
		ExpiresAt: expiresAt,
		Principal: PrincipalSummary{
			ID:     principal.ID,
			Name:   principal.FullName(),
			Email:  principal.Email,
			Active: principal.Active,
		},
	}, nil
}

func (s *AuthService) registerFailure(ctx context.Context, log *zap.Logger, principal *domain.Principal, now time.Time, input LoginInput) error {
	locked := s.policy.RegisterFailure(principal, now)
	if err := s.principals.Save(ctx, principal); err != nil {
		s.metrics.LoginAttempt(telemetry.LoginError)
		return fmt.Errorf("record failed attempt: %w", err)
	}

	s.metrics.LoginAttempt(telemetry.LoginInvalidCredentials)
	log.Info("login failed", zap.Int("failed_attempts", principal.FailedAttempts))

	if locked {
		s.metrics.AccountLocked()
		log.Warn("principal locked after repeated failures",
			zap.Int("failed_attempts", principal.FailedAttempts),
			zap.Time("locked_until", *principal.LockedUntil),
		)
		if s.events != nil {
			event := domain.AccountLockedEvent{
				EventID:        uuid.NewString(),
				PrincipalID:    principal.ID,
				Email:          principal.Email,
				FailedAttempts: principal.FailedAttempts,
				LockedAt:       now,
				LockedUntil:    *principal.LockedUntil,
				Metadata:       requestMetadata(input),
			}
			if err := s.events.PublishAccountLocked(ctx, event); err != nil {
				log.Warn("publish account locked event failed", zap.Error(err))
			}
		}
	}

	return domain.NewAuthenticationError(domain.ErrInvalidCredentials)
}

// Logout revokes a still-valid token. Revoking an already revoked token succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.NewValidationError("token", "token is required")
	}
	if !s.tokens.IsValid(token) {
		return domain.NewAuthenticationError(domain.ErrInvalidToken)
	}

	log := logger.WithContext(ctx, s.logger)

	revoked, err := s.revocations.Exists(ctx, token)
	if err != nil {
		return fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		s.metrics.Logout(false)
		return nil
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.NewAuthenticationError(domain.ErrInvalidToken)
	}

	now := s.now()
	record := domain.RevocationRecord{Token: token, ExpiresAt: claims.ExpiresAt, RevokedAt: now}
	inserted, err := s.revocations.Insert(ctx, record)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.metrics.Logout(inserted)
	if !inserted {
		return nil
	}

	fingerprint := security.Fingerprint(token)
	log.Info("token revoked", logger.Email(claims.Subject), zap.String("token_fingerprint", fingerprint[:16]))

	if s.events != nil {
		event := domain.TokenRevokedEvent{
			EventID:     uuid.NewString(),
			Subject:     claims.Subject,
			Fingerprint: fingerprint,
			RevokedAt:   now,
			ExpiresAt:   claims.ExpiresAt,
		}
		if err := s.events.PublishTokenRevoked(ctx, event); err != nil {
			log.Warn("publish token revoked event failed", zap.Error(err))
		}
	}
	return nil
}

func requestMetadata(input LoginInput) map[string]any {
	metadata := map[string]any{}
	if input.ClientIP != "" {
		metadata["client_ip"] = logger.MaskIP(input.ClientIP)
	}
	if input.UserAgent != "" {
		metadata["user_agent"] = input.UserAgent
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

