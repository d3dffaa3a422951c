package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
)

type fakeRateLimitStore struct {
	decision port.RateLimitDecision
	err      error

	keys   []string
	limits []int
}

func (f *fakeRateLimitStore) Take(_ context.Context, identifier string, limit int, _ time.Duration, _ time.Time) (port.RateLimitDecision, error) {
	f.keys = append(f.keys, identifier)
	f.limits = append(f.limits, limit)
	return f.decision, f.err
}

var loginRule = RateLimitRule{
	Name:       "auth_login_ip",
	Limit:      5,
	Window:     time.Minute,
	Identifier: func(*gin.Context) (string, bool) { return "192.0.2.1", true },
}

func newLoginRouter(limiter *RateLimiter, rule RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/auth/login", limiter.RateLimit(rule), func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	})
	return router
}

func postLogin(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterPassesLoginBelowLimit(t *testing.T) {
	now := time.Date(2025, 3, 3, 8, 15, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)
	store := &fakeRateLimitStore{decision: port.RateLimitDecision{Allowed: true, Count: 3, Oldest: oldest}}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	rr := postLogin(newLoginRouter(limiter, loginRule))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected the login handler to run, got %d", rr.Code)
	}
	if len(store.keys) != 1 || store.keys[0] != "auth_login_ip:192.0.2.1" || store.limits[0] != 5 {
		t.Fatalf("unexpected store calls keys=%v limits=%v", store.keys, store.limits)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10) {
		t.Fatalf("unexpected reset header %q", got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterThrottlesLogin(t *testing.T) {
	now := time.Date(2025, 3, 3, 8, 15, 0, 0, time.UTC)
	store := &fakeRateLimitStore{decision: port.RateLimitDecision{Allowed: false, Count: 5, Oldest: now.Add(-30 * time.Second)}}
	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewAuthMetrics returned error: %v", err)
	}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return now }).
		WithMetrics(metrics)

	rr := postLogin(newLoginRouter(limiter, loginRule))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}
	var body RateLimitedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.RetryAfter != 30 || body.Error == "" {
		t.Fatalf("unexpected body %+v", body)
	}
	if got := testutil.ToFloat64(metrics.Logins.WithLabelValues(telemetry.LoginThrottled)); got != 1 {
		t.Fatalf("expected one throttled login recorded, got %v", got)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{err: errors.New("redis down")}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	rr := postLogin(newLoginRouter(limiter, loginRule))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected the login handler to run when the store fails, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("expected no rate limit headers without a decision")
	}
}

func TestRateLimiterSkipsUnusableRules(t *testing.T) {
	store := &fakeRateLimitStore{}
	limiter := NewRateLimiter(store, nil)

	noClient := loginRule
	noClient.Identifier = func(*gin.Context) (string, bool) { return "", false }
	disabled := loginRule
	disabled.Limit = 0

	for _, rule := range []RateLimitRule{noClient, disabled} {
		if rr := postLogin(newLoginRouter(limiter, rule)); rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected pass-through, got %d", rr.Code)
		}
	}
	if rr := postLogin(newLoginRouter(nil, loginRule)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected pass-through for a nil limiter, got %d", rr.Code)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected the store to be untouched, got %v", store.keys)
	}
}
