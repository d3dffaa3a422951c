package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/infra/config"
	"github.com/arklim/expense-iam/internal/infra/security"
	"github.com/arklim/expense-iam/internal/repository"
)

type fakeAdminStore struct {
	principals map[string]domain.Principal
	roles      map[string][]string
	lookupErr  error
	creates    int
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{principals: map[string]domain.Principal{}, roles: map[string][]string{}}
}

func (s *fakeAdminStore) FindByEmail(_ context.Context, email string) (*domain.Principal, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	p, ok := s.principals[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *fakeAdminStore) CreateWithRoles(_ context.Context, principal *domain.Principal, roles []string) (bool, error) {
	s.creates++
	key := strings.ToLower(principal.Email)
	if _, ok := s.principals[key]; ok {
		return false, nil
	}
	s.principals[key] = *principal
	s.roles[principal.ID] = roles
	return true, nil
}

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	hasher, err := security.NewPasswordHasher(port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	return hasher
}

var adminSettings = config.AdminSettings{Email: " admin@expenses.example.com ", Password: "C0mplex!Passphrase#2025"}

func TestSeedAdminCreatesSuperAdmin(t *testing.T) {
	store := newFakeAdminStore()
	hasher := newTestHasher(t)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	if err := seedAdmin(context.Background(), store, hasher, adminSettings, now, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("seedAdmin returned error: %v", err)
	}

	admin, ok := store.principals["admin@expenses.example.com"]
	if !ok {
		t.Fatalf("expected admin to be stored, got %v", store.principals)
	}
	if !admin.Active || admin.PasswordChangedAt == nil || !admin.PasswordChangedAt.Equal(now) {
		t.Fatalf("unexpected admin record: %+v", admin)
	}
	if roles := store.roles[admin.ID]; len(roles) != 1 || roles[0] != domain.RoleSuperAdmin {
		t.Fatalf("expected SUPER_ADMIN role, got %v", roles)
	}
	if !strings.HasPrefix(admin.PasswordHash, "argon2id$") {
		t.Fatalf("expected an argon2id hash, got %q", admin.PasswordHash)
	}
	matches, err := hasher.Verify(adminSettings.Password, admin.PasswordHash)
	if err != nil || !matches {
		t.Fatalf("expected configured password to verify, got %v %v", matches, err)
	}
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	store := newFakeAdminStore()
	hasher := newTestHasher(t)
	log := zaptest.NewLogger(t)

	for i := 0; i < 3; i++ {
		if err := seedAdmin(context.Background(), store, hasher, adminSettings, time.Now(), log); err != nil {
			t.Fatalf("run %d: seedAdmin returned error: %v", i, err)
		}
	}

	if len(store.principals) != 1 || store.creates != 1 {
		t.Fatalf("expected a single create, got %d principals after %d creates", len(store.principals), store.creates)
	}
}

func TestSeedAdminSkippedWhenNotConfigured(t *testing.T) {
	store := newFakeAdminStore()

	if err := seedAdmin(context.Background(), store, newTestHasher(t), config.AdminSettings{}, time.Now(), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("seedAdmin returned error: %v", err)
	}
	if store.creates != 0 {
		t.Fatalf("expected no create without admin settings")
	}
}

func TestSeedAdminFailsOnLookupError(t *testing.T) {
	store := newFakeAdminStore()
	store.lookupErr = errors.New("connection refused")

	err := seedAdmin(context.Background(), store, newTestHasher(t), adminSettings, time.Now(), zaptest.NewLogger(t))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected lookup failure to surface, got %v", err)
	}
	if store.creates != 0 {
		t.Fatalf("expected no create after a failed lookup")
	}
}
