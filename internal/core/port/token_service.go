package port

import (
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
)

// TokenService issues and verifies signed bearer tokens.
type TokenService interface {
	Issue(subject string) (string, error)
	Verify(token string) (domain.TokenClaims, error)
	IsValid(token string) bool
	ExpiryOf(token string) (time.Time, error)
	Validity() time.Duration
}
