package port

import (
	"context"
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
)

// PrincipalRepository exposes persistence behavior for principals.
// Lookups ignore soft-deleted rows and compare emails case-insensitively.
type PrincipalRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	FindWithRoles(ctx context.Context, email string) (*domain.Principal, error)
	FindByID(ctx context.Context, id string) (*domain.Principal, error)
	// Save persists the lockout fields of principal.
	Save(ctx context.Context, principal *domain.Principal) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
}
