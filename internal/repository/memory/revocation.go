package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
)

var errTokenRequired = errors.New("token is required")

// ErrStoreFull is returned by Insert when the cap is reached and every stored
// revocation is still unexpired.
var ErrStoreFull = errors.New("memory revocation store is full")

// RevocationOptions controls in-memory revocation store behaviour.
type RevocationOptions struct {
	// MaxEntries caps the set. At the cap expired records are dropped; unexpired
	// ones are never evicted. Zero means unbounded.
	MaxEntries int
}

// RevocationStore keeps revoked tokens in process memory. State is lost on restart
// and not shared between instances.
type RevocationStore struct {
	mu         sync.RWMutex
	entries    map[string]domain.RevocationRecord
	maxEntries int
	now        func() time.Time
}

// NewRevocationStore constructs an empty store.
func NewRevocationStore(opts RevocationOptions) *RevocationStore {
	return &RevocationStore{
		entries:    make(map[string]domain.RevocationRecord),
		maxEntries: opts.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (s *RevocationStore) WithClock(clock func() time.Time) *RevocationStore {
	if clock != nil {
		s.mu.Lock()
		s.now = clock
		s.mu.Unlock()
	}
	return s
}

// Exists reports whether token has been revoked. Records are kept until pruned,
// so an expired token that was revoked still reports true.
func (s *RevocationStore) Exists(_ context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, errTokenRequired
	}

	s.mu.RLock()
	_, ok := s.entries[token]
	s.mu.RUnlock()
	return ok, nil
}

// Insert adds record unless the token is already present.
func (s *RevocationStore) Insert(_ context.Context, record domain.RevocationRecord) (bool, error) {
	token := strings.TrimSpace(record.Token)
	if token == "" {
		return false, errTokenRequired
	}
	record.Token = token

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[token]; ok {
		return false, nil
	}
	if record.RevokedAt.IsZero() {
		record.RevokedAt = s.now().UTC()
	}
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.dropExpiredLocked(s.now())
		if len(s.entries) >= s.maxEntries {
			return false, ErrStoreFull
		}
	}
	s.entries[token] = record
	return true, nil
}

// Prune removes records whose tokens expired at or before now.
func (s *RevocationStore) Prune(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropExpiredLocked(now), nil
}

// Len returns the number of stored records.
func (s *RevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *RevocationStore) dropExpiredLocked(now time.Time) int64 {
	var removed int64
	for token, record := range s.entries {
		if record.IsExpired(now) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

var _ port.RevocationStore = (*RevocationStore)(nil)
