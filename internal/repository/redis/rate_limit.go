package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arklim/expense-iam/internal/core/port"
)

// SlidingWindowConfig defines configuration for the login throttle keys.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// takeScript trims, checks and records in one step so concurrent logins from
// the same client cannot all slip under the limit. Scores are unix milliseconds.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[5])
	count = count + 1
	allowed = 1
end
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// RateLimitRepository keeps login attempts per client in Redis sorted sets.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Take implements port.RateLimitStore.
func (r *RateLimitRepository) Take(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (port.RateLimitDecision, error) {
	if window <= 0 {
		return port.RateLimitDecision{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return port.RateLimitDecision{}, errors.New("limit must be positive")
	}

	ttl := r.cfg.TTL
	if ttl < window {
		ttl = window
	}

	values, err := takeScript.Run(ctx, r.client, []string{r.key(identifier)},
		at.UnixMilli(),
		window.Milliseconds(),
		limit,
		ttl.Milliseconds(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis take attempt: %w", err)
	}
	if len(values) != 3 {
		return port.RateLimitDecision{}, fmt.Errorf("redis take attempt: unexpected reply %v", values)
	}

	return port.RateLimitDecision{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		Oldest:  time.UnixMilli(values[2]).UTC(),
	}, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
