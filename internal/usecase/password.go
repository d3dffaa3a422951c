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
	"github.com/arklim/expense-iam/internal/repository"
)

// PasswordService changes and resets principal passwords.
type PasswordService struct {
	principals port.PrincipalRepository
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(principals port.PrincipalRepository, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, logger *zap.Logger) *PasswordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		principals: principals,
		hasher:     hasher,
		policy:     policy,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasswordService) WithClock(clock func() time.Time) *PasswordService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithEvents attaches an audit event publisher.
func (s *PasswordService) WithEvents(events port.EventPublisher) *PasswordService {
	s.events = events
	return s
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *PasswordService) ChangePassword(ctx context.Context, caller domain.Identity, currentPassword, newPassword string) error {
	if strings.TrimSpace(caller.PrincipalID) == "" {
		return domain.NewAuthenticationError(domain.ErrInvalidToken)
	}
	if currentPassword == "" {
		return domain.NewValidationError("current_password", "current password is required")
	}
	if newPassword == "" {
		return domain.NewValidationError("new_password", "new password is required")
	}

	principal, err := s.load(ctx, caller.PrincipalID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(currentPassword, principal.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.NewValidationError("current_password", "current password is incorrect")
	}

	pctx := domain.PasswordContextFor(principal)
	pctx.Current = currentPassword
	return s.store(ctx, principal, newPassword, pctx, caller.PrincipalID, false)
}

// ResetPassword sets a new password for principalID on behalf of an administrator.
func (s *PasswordService) ResetPassword(ctx context.Context, actor domain.Identity, principalID, newPassword string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.NewValidationError("id", "principal id is required")
	}
	if newPassword == "" {
		return domain.NewValidationError("new_password", "new password is required")
	}

	principal, err := s.load(ctx, principalID)
	if err != nil {
		return err
	}
	return s.store(ctx, principal, newPassword, domain.PasswordContextFor(principal), actor.PrincipalID, true)
}

func (s *PasswordService) load(ctx context.Context, id string) (*domain.Principal, error) {
	principal, err := s.principals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.NotFoundError{}
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	return principal, nil
}

func (s *PasswordService) store(ctx context.Context, principal *domain.Principal, newPassword string, pctx domain.PasswordContext, changedBy string, reset bool) error {
	if s.policy != nil {
		if err := s.policy.Validate(newPassword, pctx); err != nil {
			return err
		}
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	if err := s.principals.UpdatePassword(ctx, principal.ID, hash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.NotFoundError{}
		}
		return fmt.Errorf("update password: %w", err)
	}

	log := logger.WithContext(ctx, s.logger)
	log.Info("password updated",
		zap.String("principal_id", principal.ID),
		zap.String("changed_by", changedBy),
		zap.Bool("reset", reset),
	)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:     uuid.NewString(),
			PrincipalID: principal.ID,
			ChangedAt:   now,
			ChangedBy:   changedBy,
			Reset:       reset,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			log.Warn("publish password changed event failed", zap.Error(err))
		}
	}
	return nil
}
