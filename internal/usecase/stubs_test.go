package usecase

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/security"
	"github.com/arklim/expense-iam/internal/repository"
	"github.com/arklim/expense-iam/internal/repository/memory"
)

const (
	testPassword  = "correct horse battery staple"
	wrongPassword = "Tr0ub4dor&3"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubPrincipalRepo struct {
	mu        sync.Mutex
	byEmail   map[string]*domain.Principal
	finds     int
	saves     int
	findErr   error
	passwords map[string]string
}

func newStubPrincipalRepo(principals ...*domain.Principal) *stubPrincipalRepo {
	repo := &stubPrincipalRepo{byEmail: map[string]*domain.Principal{}, passwords: map[string]string{}}
	for _, p := range principals {
		repo.byEmail[strings.ToLower(p.Email)] = clonePrincipal(p)
	}
	return repo
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	return &c
}

func (r *stubPrincipalRepo) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.byEmail[strings.ToLower(email)]
	if !ok || p.Deleted {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *stubPrincipalRepo) FindWithRoles(ctx context.Context, email string) (*domain.Principal, error) {
	return r.FindByEmail(ctx, email)
}

func (r *stubPrincipalRepo) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byEmail {
		if p.ID == id && !p.Deleted {
			return clonePrincipal(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubPrincipalRepo) Save(_ context.Context, principal *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.byEmail[strings.ToLower(principal.Email)] = clonePrincipal(principal)
	return nil
}

func (r *stubPrincipalRepo) UpdatePassword(_ context.Context, id string, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byEmail {
		if p.ID == id && !p.Deleted {
			p.PasswordHash = passwordHash
			at := changedAt
			p.PasswordChangedAt = &at
			r.passwords[id] = passwordHash
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubPrincipalRepo) get(email string) *domain.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePrincipal(r.byEmail[strings.ToLower(email)])
}

type recordingEvents struct {
	mu        sync.Mutex
	locked    []domain.AccountLockedEvent
	logins    []domain.LoginSucceededEvent
	revoked   []domain.TokenRevokedEvent
	passwords []domain.PasswordChangedEvent
}

func (e *recordingEvents) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = append(e.locked, event)
	return nil
}

func (e *recordingEvents) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logins = append(e.logins, event)
	return nil
}

func (e *recordingEvents) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revoked = append(e.revoked, event)
	return nil
}

func (e *recordingEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passwords = append(e.passwords, event)
	return nil
}

var _ port.EventPublisher = (*recordingEvents)(nil)

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	hasher, err := security.NewPasswordHasher(port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return hasher
}

func newTestTokenService(t *testing.T, clock *fakeClock) *security.TokenService {
	t.Helper()
	secret := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32)))
	svc, err := security.NewTokenService(secret, time.Hour, security.WithTokenClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	return svc
}

func newTestPrincipal(t *testing.T, hasher *security.PasswordHasher) *domain.Principal {
	t.Helper()
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	return &domain.Principal{
		ID:           "8d3c6c1e-1d7a-4d8e-9d55-0f2a6b1c9e01",
		Email:        "a@x.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		EmployeeID:   "E-1001",
		PasswordHash: hash,
		Active:       true,
		Roles:        []string{domain.RoleEmployee},
	}
}

type authFixture struct {
	clock       *fakeClock
	principals  *stubPrincipalRepo
	revocations *memory.RevocationStore
	tokens      *security.TokenService
	hasher      *security.PasswordHasher
	events      *recordingEvents
	auth        *AuthService
}

func newAuthFixture(t *testing.T, mutate func(*domain.Principal)) *authFixture {
	t.Helper()
	clock := newFakeClock()
	hasher := newTestHasher(t)
	principal := newTestPrincipal(t, hasher)
	if mutate != nil {
		mutate(principal)
	}

	f := &authFixture{
		clock:       clock,
		principals:  newStubPrincipalRepo(principal),
		revocations: memory.NewRevocationStore(memory.RevocationOptions{}).WithClock(clock.Now),
		tokens:      newTestTokenService(t, clock),
		hasher:      hasher,
		events:      &recordingEvents{},
	}
	f.auth = NewAuthService(f.principals, f.revocations, f.tokens, hasher, domain.DefaultLockoutPolicy(), nil).
		WithClock(clock.Now).
		WithEvents(f.events)
	return f
}

func timePtr(t time.Time) *time.Time {
	return &t
}
