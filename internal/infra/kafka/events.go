package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types; the producer prefixes them with the configured topic prefix.
const (
	EventAccountLocked   = "auth.account_locked"
	EventLoginSucceeded  = "auth.login_succeeded"
	EventTokenRevoked    = "auth.token_revoked"
	EventPasswordChanged = "auth.password_changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountLocked publishes auth.account_locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		PrincipalID    string         `json:"principal_id"`
		Email          string         `json:"email"`
		FailedAttempts int            `json:"failed_attempts"`
		LockedAt       time.Time      `json:"locked_at"`
		LockedUntil    time.Time      `json:"locked_until"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:    event.PrincipalID,
		Email:          event.Email,
		FailedAttempts: event.FailedAttempts,
		LockedAt:       event.LockedAt.UTC(),
		LockedUntil:    event.LockedUntil.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventAccountLocked, event.PrincipalID, event.LockedAt, payload)
}

// PublishLoginSucceeded publishes auth.login_succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		PrincipalID    string         `json:"principal_id"`
		Email          string         `json:"email"`
		LoggedInAt     time.Time      `json:"logged_in_at"`
		TokenExpiresAt time.Time      `json:"token_expires_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID:    event.PrincipalID,
		Email:          event.Email,
		LoggedInAt:     event.LoggedInAt.UTC(),
		TokenExpiresAt: event.TokenExpiresAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventLoginSucceeded, event.PrincipalID, event.LoggedInAt, payload)
}

// PublishTokenRevoked publishes auth.token_revoked events carrying only the token fingerprint.
func (p *EventPublisher) PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error {
	payload := struct {
		Subject     string         `json:"subject"`
		Fingerprint string         `json:"token_fingerprint"`
		RevokedAt   time.Time      `json:"revoked_at"`
		ExpiresAt   time.Time      `json:"expires_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Subject:     event.Subject,
		Fingerprint: event.Fingerprint,
		RevokedAt:   event.RevokedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTokenRevoked, "", event.RevokedAt, payload)
}

// PublishPasswordChanged publishes auth.password_changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		PrincipalID string         `json:"principal_id"`
		ChangedAt   time.Time      `json:"changed_at"`
		ChangedBy   string         `json:"changed_by"`
		Reset       bool           `json:"reset"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		PrincipalID: event.PrincipalID,
		ChangedAt:   event.ChangedAt.UTC(),
		ChangedBy:   event.ChangedBy,
		Reset:       event.Reset,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.PrincipalID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
