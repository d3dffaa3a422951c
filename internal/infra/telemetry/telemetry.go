package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes recorded by AuthMetrics.
const (
	LoginSucceeded          = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginLocked             = "locked"
	LoginDisabled           = "disabled"
	LoginRejected           = "rejected"
	LoginThrottled          = "throttled"
	LoginError              = "error"
)

// AuthMetricsOptions configures the authentication collectors.
type AuthMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AuthMetrics exposes Prometheus collectors for the authentication flows.
type AuthMetrics struct {
	Logins          *prometheus.CounterVec
	Lockouts        prometheus.Counter
	Logouts         *prometheus.CounterVec
	Authentications *prometheus.CounterVec
	Pruned          prometheus.Counter
}

// NewAuthMetrics constructs the authentication collectors and registers them with the provided registerer.
func NewAuthMetrics(opts AuthMetricsOptions) (*AuthMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "expense"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"})
	if err := Register(reg, &logins); err != nil {
		return nil, err
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "account_lockouts_total",
		Help:      "Accounts locked after repeated login failures.",
	})
	if err := Register(reg, &lockouts); err != nil {
		return nil, err
	}

	logouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "logouts_total",
		Help:      "Logout requests partitioned by whether a new revocation was recorded.",
	}, []string{"revoked"})
	if err := Register(reg, &logouts); err != nil {
		return nil, err
	}

	authentications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "request_authentications_total",
		Help:      "Bearer token evaluations partitioned by result.",
	}, []string{"result"})
	if err := Register(reg, &authentications); err != nil {
		return nil, err
	}

	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "revocations_pruned_total",
		Help:      "Expired revocation records removed by the janitor.",
	})
	if err := Register(reg, &pruned); err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Logins:          logins,
		Lockouts:        lockouts,
		Logouts:         logouts,
		Authentications: authentications,
		Pruned:          pruned,
	}, nil
}

// Register adds the collector, reusing an existing collector of the same type when already registered.
func Register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*c = existing
	}
	return nil
}

func (m *AuthMetrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) AccountLocked() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *AuthMetrics) Logout(revoked bool) {
	if m == nil {
		return
	}
	label := "false"
	if revoked {
		label = "true"
	}
	m.Logouts.WithLabelValues(label).Inc()
}

// Authentication records a bearer evaluation; result is "authenticated" or "anonymous".
func (m *AuthMetrics) Authentication(result string) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(result).Inc()
}

func (m *AuthMetrics) RevocationsPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Pruned.Add(float64(n))
}
