package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "expense"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{Name: "expense-iam", Env: "test"}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, producer *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()
	select {
	case msg := <-producer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
	return nil, nil
}

func TestPublishAccountLocked(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	lockedAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.AccountLockedEvent{
		EventID:        "event-123",
		PrincipalID:    "p-789",
		Email:          "alice@example.com",
		FailedAttempts: 5,
		LockedAt:       lockedAt,
		LockedUntil:    lockedAt.Add(24 * time.Hour),
		Metadata:       map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishAccountLocked(context.Background(), event); err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != "expense.auth.account_locked" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "p-789" {
		t.Fatalf("expected message keyed by principal, got %q", key)
	}
	if envelope["event_id"] != "event-123" || envelope["event_type"] != "expense.auth.account_locked" {
		t.Fatalf("unexpected envelope header: %v", envelope)
	}
	if envelope["user_id"] != "p-789" || envelope["version"] != schemaVersion {
		t.Fatalf("unexpected envelope identity: %v", envelope)
	}
	if envelope["timestamp"] != lockedAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if attempts, _ := payload["failed_attempts"].(float64); int(attempts) != 5 {
		t.Fatalf("unexpected failed_attempts: %v", payload["failed_attempts"])
	}
	if payload["locked_until"] != lockedAt.Add(24*time.Hour).Format(time.RFC3339Nano) {
		t.Fatalf("unexpected locked_until: %v", payload["locked_until"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok || metadata["service"] != "expense-iam" || metadata["environment"] != "test" {
		t.Fatalf("unexpected envelope metadata: %v", envelope["metadata"])
	}
}

func TestPublishTokenRevokedCarriesFingerprintOnly(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.TokenRevokedEvent{
		Subject:     "alice@example.com",
		Fingerprint: "abc123",
		RevokedAt:   time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC),
		ExpiresAt:   time.Date(2025, 10, 31, 13, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishTokenRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishTokenRevoked returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != "expense.auth.token_revoked" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if envelope["event_id"] == "" {
		t.Fatal("expected generated event id")
	}
	payload := envelope["payload"].(map[string]any)
	if payload["token_fingerprint"] != "abc123" {
		t.Fatalf("unexpected fingerprint: %v", payload["token_fingerprint"])
	}
	if _, ok := payload["token"]; ok {
		t.Fatal("raw token must not be published")
	}
}

func TestPublishRespectsContextCancellation(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishLoginSucceeded(ctx, domain.LoginSucceededEvent{PrincipalID: "p-1"})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	p := &Producer{cfg: config.KafkaSettings{TopicPrefix: "expense"}}
	if got := p.TopicName(EventLoginSucceeded); got != "expense.auth.login_succeeded" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := p.TopicName("expense.auth.login_succeeded"); got != "expense.auth.login_succeeded" {
		t.Fatalf("expected prefixed name unchanged, got %s", got)
	}
	p.cfg.TopicPrefix = ""
	if got := p.TopicName(EventTokenRevoked); got != EventTokenRevoked {
		t.Fatalf("expected bare event type, got %s", got)
	}
}

func TestStubPublisherLogsEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher := NewStubPublisher(zap.New(core))

	if err := publisher.PublishAccountLocked(context.Background(), domain.AccountLockedEvent{
		PrincipalID: "p-1",
		Email:       "alice@example.com",
		LockedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("PublishAccountLocked returned error: %v", err)
	}

	entries := logs.FilterMessage("stub event published").All()
	if len(entries) != 1 {
		t.Fatalf("expected one stub log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != EventAccountLocked || fields["email"] != "ali***@example.com" {
		t.Fatalf("unexpected stub fields: %v", fields)
	}
}
