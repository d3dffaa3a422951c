package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arklim/expense-iam/internal/core/domain"
)

const envPrefix = "EXPENSE"

// Revocation backends.
const (
	RevocationBackendPostgres = "postgres"
	RevocationBackendRedis    = "redis"
	RevocationBackendMemory   = "memory"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Lockout    LockoutSettings    `mapstructure:"lockout"`
	Revocation RevocationSettings `mapstructure:"revocation"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
	Argon2     Argon2Settings     `mapstructure:"argon2"`
	Password   PasswordSettings   `mapstructure:"password"`
	Admin      AdminSettings      `mapstructure:"admin"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_allowed_origins"`
}

// Addr returns host:port for the HTTP listener.
func (s AppSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

// DSN renders a postgres:// connection URL.
func (s PostgresSettings) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   fmt.Sprintf("%s:%s", s.Host, strconv.Itoa(s.Port)),
		Path:   "/" + s.Database,
	}
	q := u.Query()
	if s.SSLMode != "" {
		q.Set("sslmode", s.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the audit event producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	SigningSecret        string `mapstructure:"signing_secret"`
	TokenValidityMinutes int    `mapstructure:"token_validity_minutes"`
}

// TokenValidity converts the configured minutes into a duration.
func (s JWTSettings) TokenValidity() time.Duration {
	return time.Duration(s.TokenValidityMinutes) * time.Minute
}

type LockoutSettings struct {
	Threshold     int           `mapstructure:"threshold"`
	Duration      time.Duration `mapstructure:"duration"`
	FailureWindow time.Duration `mapstructure:"failure_window"`
}

// Policy maps the settings onto the domain lockout policy.
func (s LockoutSettings) Policy() domain.LockoutPolicy {
	return domain.LockoutPolicy{
		Threshold:     s.Threshold,
		Duration:      s.Duration,
		FailureWindow: s.FailureWindow,
	}
}

type RevocationSettings struct {
	Backend       string        `mapstructure:"backend"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	MaxEntries    int           `mapstructure:"max_entries"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Enabled      bool    `mapstructure:"enabled"`
}

// RateLimitSettings configures the login throttle per client IP
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MaxLength           int `mapstructure:"max_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score"`
}

// AdminSettings names the SUPER_ADMIN account created on startup when absent.
// Leaving both empty skips the bootstrap.
type AdminSettings struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether a bootstrap admin is configured.
func (s AdminSettings) Enabled() bool {
	return strings.TrimSpace(s.Email) != "" && s.Password != ""
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.shutdown_timeout",
	"app.cors_allowed_origins",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.migrate_on_start",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.rate_limit_prefix",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"jwt.signing_secret",
	"jwt.token_validity_minutes",
	"lockout.threshold",
	"lockout.duration",
	"lockout.failure_window",
	"revocation.backend",
	"revocation.key_prefix",
	"revocation.prune_interval",
	"revocation.max_entries",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"telemetry.enabled",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password.min_length",
	"password.max_length",
	"password.min_character_classes",
	"password.min_strength_score",
	"admin.email",
	"admin.password",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with. The signing secret
// itself is checked when the token service is built.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWT.SigningSecret) == "" {
		return &domain.ConfigurationError{Setting: "jwt.signing_secret", Err: errors.New("not set")}
	}
	if c.JWT.TokenValidityMinutes <= 0 {
		return &domain.ConfigurationError{Setting: "jwt.token_validity_minutes", Err: errors.New("must be positive")}
	}
	if c.Lockout.Threshold <= 0 {
		return &domain.ConfigurationError{Setting: "lockout.threshold", Err: errors.New("must be positive")}
	}
	if c.Lockout.Duration <= 0 {
		return &domain.ConfigurationError{Setting: "lockout.duration", Err: errors.New("must be positive")}
	}
	if c.Lockout.FailureWindow <= 0 {
		return &domain.ConfigurationError{Setting: "lockout.failure_window", Err: errors.New("must be positive")}
	}

	if !c.Admin.Enabled() && (strings.TrimSpace(c.Admin.Email) != "" || c.Admin.Password != "") {
		return &domain.ConfigurationError{Setting: "admin", Err: errors.New("admin.email and admin.password must be set together")}
	}

	c.Revocation.Backend = strings.ToLower(strings.TrimSpace(c.Revocation.Backend))
	switch c.Revocation.Backend {
	case RevocationBackendPostgres, RevocationBackendRedis, RevocationBackendMemory:
	default:
		return &domain.ConfigurationError{
			Setting: "revocation.backend",
			Err:     fmt.Errorf("unsupported backend %q", c.Revocation.Backend),
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "expense-iam")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", "15s")
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "expense")
	v.SetDefault("postgres.password", "expense_password")
	v.SetDefault("postgres.database", "expense")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.migrate_on_start", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "expense:ratelimit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "expense")

	v.SetDefault("jwt.token_validity_minutes", 60)

	v.SetDefault("lockout.threshold", domain.DefaultLockoutThreshold)
	v.SetDefault("lockout.duration", domain.DefaultLockoutDuration.String())
	v.SetDefault("lockout.failure_window", domain.DefaultLockoutFailureWindow.String())

	v.SetDefault("revocation.backend", RevocationBackendPostgres)
	v.SetDefault("revocation.key_prefix", "expense:revoked")
	v.SetDefault("revocation.prune_interval", "1h")
	v.SetDefault("revocation.max_entries", 100000)

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "expense-iam")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 10)
	v.SetDefault("password.max_length", 128)
	v.SetDefault("password.min_character_classes", 3)
	v.SetDefault("password.min_strength_score", 3)

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
