package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/port"
	appLogger "github.com/arklim/expense-iam/internal/infra/logger"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
)

// IdentifierFunc extracts the client a limit applies to.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window limit, e.g. login attempts per client IP.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) usable() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// RateLimitedResponse is returned with 429 when a client exceeds a rule.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter throttles requests per client before they reach the login flow,
// so password guessing across many accounts from one address is slowed down
// as well as guessing against a single account.
type RateLimiter struct {
	store   port.RateLimitStore
	metrics *telemetry.AuthMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimiter builds a limiter backed by store.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// WithMetrics records throttled logins as a login outcome.
func (rl *RateLimiter) WithMetrics(metrics *telemetry.AuthMetrics) *RateLimiter {
	rl.metrics = metrics
	return rl
}

// ClientIPIdentifier scopes a rule to the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit enforces rule. Store failures let the request through.
func (rl *RateLimiter) RateLimit(rule RateLimitRule) gin.HandlerFunc {
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		if rl == nil || rl.store == nil || !rule.usable() {
			c.Next()
			return
		}

		identifier, ok := rule.Identifier(c)
		if !ok {
			c.Next()
			return
		}

		now := rl.now()
		key := rule.Name + ":" + identifier
		decision, err := rl.store.Take(c.Request.Context(), key, rule.Limit, rule.Window, now)
		if err != nil {
			appLogger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
				zap.String("rule", rule.Name), appLogger.ClientIP(identifier), zap.Error(err))
			c.Next()
			return
		}

		reset := decision.Oldest.Add(rule.Window)
		headers := c.Writer.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(rule.Limit-decision.Count, 0)))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := max(int(math.Ceil(reset.Sub(now).Seconds())), 0)
		headers.Set("Retry-After", strconv.Itoa(retryAfter))
		rl.metrics.LoginAttempt(telemetry.LoginThrottled)
		appLogger.WithContext(c.Request.Context(), rl.logger).Info("request throttled",
			zap.String("rule", rule.Name), appLogger.ClientIP(identifier), zap.Int("retry_after", retryAfter))

		c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitedResponse{
			Error:      fmt.Sprintf("too many attempts, retry in %d seconds", retryAfter),
			RetryAfter: retryAfter,
			TraceID:    GetTraceID(c),
		})
	}
}
