package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/expense-iam/internal/core/domain"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRevocationRepository_InsertAndExists(t *testing.T) {
	client, server := newTestRedis(t)
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "expense:revoked").WithClock(func() time.Time { return now })

	ctx := context.Background()
	record := domain.RevocationRecord{Token: "header.payload.sig", ExpiresAt: now.Add(2 * time.Minute)}

	added, err := repo.Insert(ctx, record)
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if !added {
		t.Fatal("expected first insert to add the key")
	}

	revoked, err := repo.Exists(ctx, "header.payload.sig")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}

	remaining := server.TTL("expense:revoked:header.payload.sig")
	if remaining <= 0 || remaining > 2*time.Minute {
		t.Fatalf("expected ttl within (0, 2m], got %v", remaining)
	}

	added, err = repo.Insert(ctx, record)
	if err != nil {
		t.Fatalf("second Insert returned error: %v", err)
	}
	if added {
		t.Fatal("expected second insert to be a no-op")
	}
}

func TestRevocationRepository_ExpiresWithToken(t *testing.T) {
	client, server := newTestRedis(t)
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "").WithClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := repo.Insert(ctx, domain.RevocationRecord{Token: "tok", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if !server.Exists(defaultRevocationPrefix + ":tok") {
		t.Fatal("expected key under default prefix")
	}

	server.FastForward(2 * time.Minute)

	revoked, err := repo.Exists(ctx, "tok")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if revoked {
		t.Fatal("expected key to expire with the token")
	}
}

func TestRevocationRepository_SkipsExpiredRecords(t *testing.T) {
	client, server := newTestRedis(t)
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := NewRevocationRepository(client, "expense:revoked").WithClock(func() time.Time { return now })

	added, err := repo.Insert(context.Background(), domain.RevocationRecord{Token: "old", ExpiresAt: now.Add(-time.Second)})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if added || server.Exists("expense:revoked:old") {
		t.Fatal("expected expired record to be skipped")
	}
}

func TestRevocationRepository_ErrorsWhenUnavailable(t *testing.T) {
	client := red.NewClient(&red.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewRevocationRepository(client, "expense:revoked")

	if _, err := repo.Exists(context.Background(), "tok"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestRevocationRepository_RejectsBlankToken(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRevocationRepository(client, "expense:revoked")

	if _, err := repo.Exists(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank token")
	}
	if n, err := repo.Prune(context.Background(), time.Now()); n != 0 || err != nil {
		t.Fatalf("expected prune no-op, got n=%d err=%v", n, err)
	}
}
