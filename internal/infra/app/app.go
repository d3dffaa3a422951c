package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/config"
	"github.com/arklim/expense-iam/internal/infra/database"
	kafkainfra "github.com/arklim/expense-iam/internal/infra/kafka"
	"github.com/arklim/expense-iam/internal/infra/logger"
	redisinfra "github.com/arklim/expense-iam/internal/infra/redis"
	"github.com/arklim/expense-iam/internal/infra/security"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
	"github.com/arklim/expense-iam/internal/repository/memory"
	postgresrepo "github.com/arklim/expense-iam/internal/repository/postgres"
	redisrepo "github.com/arklim/expense-iam/internal/repository/redis"
	"github.com/arklim/expense-iam/internal/transport/http/middleware"
	"github.com/arklim/expense-iam/internal/transport/http/routes"
	"github.com/arklim/expense-iam/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
	janitor  *usecase.RevocationJanitor
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	tokens, err := security.NewTokenService(cfg.JWT.SigningSecret, cfg.JWT.TokenValidity())
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	hasher, err := security.NewPasswordHasher(port.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	passwordPolicy := security.NewPasswordPolicy(security.PasswordPolicySettings{
		MinLength:           cfg.Password.MinLength,
		MaxLength:           cfg.Password.MaxLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	})

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, pool, log); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	repos := postgresrepo.NewStoreFromPool(pool).Repositories()

	if err := seedAdmin(ctx, repos.Principals, hasher, cfg.Admin, time.Now(), log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Redis backs the login throttle and, optionally, the revocation set.
	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		if cfg.Revocation.Backend == config.RevocationBackendRedis {
			return fmt.Errorf("init redis: %w", err)
		}
		log.Warn("redis unavailable, login rate limiting disabled", zap.Error(err))
	}
	a.redis = redisClient

	revocations, err := a.revocationStore(repos)
	if err != nil {
		return err
	}

	events := a.eventPublisher()

	authMetrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	authService := usecase.NewAuthService(repos.Principals, revocations, tokens, hasher, cfg.Lockout.Policy(), log).
		WithEvents(events).
		WithMetrics(authMetrics)
	passwordService := usecase.NewPasswordService(repos.Principals, hasher, passwordPolicy, log).
		WithEvents(events)
	authenticator := usecase.NewRequestAuthenticator(revocations, tokens, repos.Principals, log).
		WithMetrics(authMetrics)

	a.janitor = usecase.NewRevocationJanitor(revocations, cfg.Revocation.PruneInterval, log).
		WithMetrics(authMetrics)

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Services: routes.ServiceSet{
			Auth:          authService,
			Passwords:     passwordService,
			Authenticator: authenticator,
		},
	}
	if redisClient != nil {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: cfg.Redis.RateLimitPrefix,
			TTL:       window * 2,
		})
		deps.RateLimiter = middleware.NewRateLimiter(rateLimitStore, log).WithMetrics(authMetrics)
		deps.Cache = redisClient
	}

	a.engine = routes.Register(deps)
	return nil
}

func (a *Application) revocationStore(repos *postgresrepo.Repositories) (port.RevocationStore, error) {
	cfg := a.cfg.Revocation
	a.logger.Info("revocation store selected", zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.RevocationBackendPostgres:
		return repos.Revocations, nil
	case config.RevocationBackendRedis:
		if a.redis == nil {
			return nil, errors.New("redis revocation backend requires a redis connection")
		}
		return redisrepo.NewRevocationRepository(a.redis.Client(), cfg.KeyPrefix), nil
	case config.RevocationBackendMemory:
		a.logger.Warn("in-memory revocations are lost on restart and not shared between instances")
		return memory.NewRevocationStore(memory.RevocationOptions{MaxEntries: cfg.MaxEntries}), nil
	default:
		return nil, fmt.Errorf("unsupported revocation backend %q", cfg.Backend)
	}
}

func (a *Application) eventPublisher() port.EventPublisher {
	cfg := a.cfg.Kafka
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		a.logger.Info("kafka disabled, audit events are logged only")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(cfg, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.App.Addr(),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.janitor.Run(janitorCtx)

	a.logger.Info("starting expense IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("revocation_backend", a.cfg.Revocation.Backend),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a.logger.Info("shutting down", zap.Duration("timeout", timeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		if a.tracer != nil {
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
