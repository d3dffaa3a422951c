package port

import (
	"context"

	"github.com/arklim/expense-iam/internal/core/domain"
)

// EventPublisher publishes authentication audit events to the message bus.
type EventPublisher interface {
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
