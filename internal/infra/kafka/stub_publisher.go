package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		append([]zap.Field{
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Time("timestamp", at.UTC()),
		}, fields...)...,
	)
}

// PublishAccountLocked logs auth.account_locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(EventAccountLocked, event.PrincipalID, event.LockedAt,
		logger.Email(event.Email),
		zap.Int("failed_attempts", event.FailedAttempts),
		zap.Time("locked_until", event.LockedUntil.UTC()),
	)
	return nil
}

// PublishLoginSucceeded logs auth.login_succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent(EventLoginSucceeded, event.PrincipalID, event.LoggedInAt,
		logger.Email(event.Email),
		zap.Time("token_expires_at", event.TokenExpiresAt.UTC()),
	)
	return nil
}

// PublishTokenRevoked logs auth.token_revoked events.
func (p *StubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	p.logEvent(EventTokenRevoked, "", event.RevokedAt,
		logger.Email(event.Subject),
		zap.String("token_fingerprint", event.Fingerprint),
		zap.Time("expires_at", event.ExpiresAt.UTC()),
	)
	return nil
}

// PublishPasswordChanged logs auth.password_changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.PrincipalID, event.ChangedAt,
		zap.String("changed_by", event.ChangedBy),
		zap.Bool("reset", event.Reset),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
