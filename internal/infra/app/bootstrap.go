package app

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
	"github.com/arklim/expense-iam/internal/infra/config"
	"github.com/arklim/expense-iam/internal/infra/logger"
	"github.com/arklim/expense-iam/internal/repository"
)

type adminStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	CreateWithRoles(ctx context.Context, principal *domain.Principal, roles []string) (bool, error)
}

// seedAdmin creates the configured SUPER_ADMIN unless a live principal
// already owns the email. Running it again is a no-op.
func seedAdmin(ctx context.Context, store adminStore, hasher port.PasswordHasher, cfg config.AdminSettings, now time.Time, log *zap.Logger) error {
	if !cfg.Enabled() {
		log.Info("admin bootstrap skipped, admin.email not configured")
		return nil
	}
	email := strings.TrimSpace(cfg.Email)

	_, err := store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info("admin already present", logger.Email(email))
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	changedAt := now.UTC()
	created, err := store.CreateWithRoles(ctx, &domain.Principal{
		ID:                uuid.NewString(),
		Email:             email,
		FirstName:         "System",
		LastName:          "Admin",
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: &changedAt,
	}, []string{domain.RoleSuperAdmin})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	if created {
		log.Info("admin created", logger.Email(email), zap.String("role", domain.RoleSuperAdmin))
	} else {
		// Another instance won the race, or the email belongs to a deleted principal.
		log.Warn("admin email already taken, bootstrap skipped", logger.Email(email))
	}
	return nil
}
