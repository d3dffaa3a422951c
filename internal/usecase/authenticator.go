package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/logger"
	"github.com/arklim/expense-iam/internal/infra/telemetry"
	"github.com/arklim/expense-iam/internal/repository"
)

const bearerPrefix = domain.TokenType + " "

// BearerToken extracts the token from an Authorization header value of the form "Bearer <token>".
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// RequestAuthenticator turns an Authorization header into an Authentication value.
// It never fails: every rejection yields Anonymous.
type RequestAuthenticator struct {
	revocations port.RevocationStore
	tokens      port.TokenService
	principals  port.PrincipalRepository
	metrics     *telemetry.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewRequestAuthenticator constructs a RequestAuthenticator.
func NewRequestAuthenticator(revocations port.RevocationStore, tokens port.TokenService, principals port.PrincipalRepository, logger *zap.Logger) *RequestAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestAuthenticator{
		revocations: revocations,
		tokens:      tokens,
		principals:  principals,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (a *RequestAuthenticator) WithClock(clock func() time.Time) *RequestAuthenticator {
	if clock != nil {
		a.now = clock
	}
	return a
}

// WithMetrics attaches authentication counters.
func (a *RequestAuthenticator) WithMetrics(metrics *telemetry.AuthMetrics) *RequestAuthenticator {
	a.metrics = metrics
	return a
}

// Authenticate evaluates the header and returns Authenticated only for an unrevoked,
// unexpired token whose subject is an enabled principal.
func (a *RequestAuthenticator) Authenticate(ctx context.Context, header string) (auth domain.Authentication) {
	log := logger.WithContext(ctx, a.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("request authentication panicked", zap.Any("panic", r))
			auth = domain.AnonymousAuthentication()
		}
		a.metrics.Authentication(auth.Kind.String())
	}()

	identity, err := a.resolve(ctx, header)
	if err != nil {
		if !errors.Is(err, errAnonymous) {
			log.Warn("request authentication failed", zap.Error(err))
		}
		return domain.AnonymousAuthentication()
	}
	return domain.AuthenticatedAs(identity)
}

var errAnonymous = errors.New("anonymous request")

func (a *RequestAuthenticator) resolve(ctx context.Context, header string) (domain.Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return domain.Identity{}, errAnonymous
	}

	revoked, err := a.revocations.Exists(ctx, token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.Identity{}, errAnonymous
	}

	claims, err := a.tokens.Verify(token)
	if err != nil || strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, errAnonymous
	}
	if !a.tokens.IsValid(token) {
		return domain.Identity{}, errAnonymous
	}

	principal, err := a.principals.FindWithRoles(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.WithContext(ctx, a.logger).Info("token subject no longer resolves", logger.Email(claims.Subject))
			return domain.Identity{}, errAnonymous
		}
		return domain.Identity{}, fmt.Errorf("load principal: %w", err)
	}

	authorities := domain.DeriveAuthorities(principal, a.now())
	if !authorities.Enabled {
		return domain.Identity{}, errAnonymous
	}

	return domain.Identity{
		PrincipalID:    principal.ID,
		Email:          principal.Email,
		Name:           principal.FullName(),
		Roles:          authorities.Roles,
		TokenExpiresAt: claims.ExpiresAt,
		Locked:         authorities.Locked,
	}, nil
}
