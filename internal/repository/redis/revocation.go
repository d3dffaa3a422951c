package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
)

const (
	defaultRevocationPrefix = "expense:revoked"
	revokedMarker           = "1"
)

// RevocationRepository stores revoked tokens as keys that expire together with the token.
type RevocationRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client *red.Client, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used to compute key TTLs.
func (r *RevocationRepository) WithClock(clock func() time.Time) *RevocationRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Exists reports whether a key for token is present.
func (r *RevocationRepository) Exists(ctx context.Context, token string) (bool, error) {
	key := r.key(token)
	if key == "" {
		return false, errors.New("token must not be empty")
	}

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked token: %w", err)
	}
	return n > 0, nil
}

// Insert sets the key only when absent, with a TTL equal to the token's remaining lifetime.
// Records for tokens that already expired are skipped.
func (r *RevocationRepository) Insert(ctx context.Context, record domain.RevocationRecord) (bool, error) {
	key := r.key(record.Token)
	if key == "" {
		return false, errors.New("token must not be empty")
	}

	ttl := record.TTL(r.now())
	if ttl <= 0 {
		return false, nil
	}

	added, err := r.client.SetNX(ctx, key, revokedMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx revoked token: %w", err)
	}
	return added, nil
}

// Prune is a no-op; Redis expires keys on its own.
func (r *RevocationRepository) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *RevocationRepository) key(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
