package domain

import (
	"strings"
	"time"
)

// Role names recognised by the expense administration tool.
const (
	RoleEmployee     = "EMPLOYEE"
	RoleFinanceAdmin = "FINANCE_ADMIN"
	RoleSuperAdmin   = "SUPER_ADMIN"
)

// Principal mirrors a row of the principals table together with its role names.
type Principal struct {
	ID                string
	Email             string
	FirstName         string
	LastName          string
	EmployeeID        string
	PasswordHash      string
	Active            bool
	Deleted           bool
	FailedAttempts    int
	LastFailedAttempt *time.Time
	LockedUntil       *time.Time
	PasswordChangedAt *time.Time
	Roles             []string
}

// FullName joins first and last names, skipping empty parts.
func (p *Principal) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// IsLocked reports whether a lock is engaged at now.
func (p *Principal) IsLocked(now time.Time) bool {
	return p != nil && p.LockedUntil != nil && p.LockedUntil.After(now)
}

// HasLockoutState reports whether any lockout bookkeeping is recorded.
func (p *Principal) HasLockoutState() bool {
	return p != nil && (p.FailedAttempts > 0 || p.LastFailedAttempt != nil || p.LockedUntil != nil)
}

// ResetLockout clears the failure counter and any lock.
func (p *Principal) ResetLockout() {
	p.FailedAttempts = 0
	p.LastFailedAttempt = nil
	p.LockedUntil = nil
}

// Authorities is the security view of a principal at a point in time.
type Authorities struct {
	Roles   []string
	Enabled bool
	Locked  bool
}

// DeriveAuthorities computes the security view of p. It does not mutate p.
func DeriveAuthorities(p *Principal, now time.Time) Authorities {
	if p == nil {
		return Authorities{}
	}
	roles := make([]string, 0, len(p.Roles))
	seen := make(map[string]struct{}, len(p.Roles))
	for _, role := range p.Roles {
		name := strings.ToUpper(strings.TrimSpace(role))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		roles = append(roles, name)
	}
	return Authorities{
		Roles:   roles,
		Enabled: p.Active && !p.Deleted,
		Locked:  p.IsLocked(now),
	}
}

const (
	DefaultLockoutThreshold     = 5
	DefaultLockoutDuration      = 24 * time.Hour
	DefaultLockoutFailureWindow = time.Hour
)

// LockoutPolicy controls progressive lockout after consecutive failed logins.
type LockoutPolicy struct {
	Threshold     int
	Duration      time.Duration
	FailureWindow time.Duration
}

// DefaultLockoutPolicy returns 5 failures within an hour locking the account for a day.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold:     DefaultLockoutThreshold,
		Duration:      DefaultLockoutDuration,
		FailureWindow: DefaultLockoutFailureWindow,
	}
}

// Normalize replaces non-positive settings with defaults.
func (lp LockoutPolicy) Normalize() LockoutPolicy {
	if lp.Threshold <= 0 {
		lp.Threshold = DefaultLockoutThreshold
	}
	if lp.Duration <= 0 {
		lp.Duration = DefaultLockoutDuration
	}
	if lp.FailureWindow <= 0 {
		lp.FailureWindow = DefaultLockoutFailureWindow
	}
	return lp
}

// RegisterFailure records a failed attempt at now and reports whether the lock engaged.
// A failure at least one window after the previous one starts a new streak.
func (lp LockoutPolicy) RegisterFailure(p *Principal, now time.Time) bool {
	lp = lp.Normalize()
	if p.LastFailedAttempt == nil || now.Sub(*p.LastFailedAttempt) >= lp.FailureWindow {
		p.FailedAttempts = 1
	} else {
		p.FailedAttempts++
	}
	failedAt := now
	p.LastFailedAttempt = &failedAt

	if p.FailedAttempts >= lp.Threshold {
		until := now.Add(lp.Duration)
		p.LockedUntil = &until
		return true
	}
	return false
}
