package port

import (
	"context"
	"time"

	"github.com/arklim/expense-iam/internal/core/domain"
)

// RevocationStore keeps the set of tokens rejected before their natural expiry.
type RevocationStore interface {
	Exists(ctx context.Context, token string) (bool, error)
	// Insert adds record unless the token is already present and reports whether it was added.
	Insert(ctx context.Context, record domain.RevocationRecord) (bool, error)
	// Prune removes records whose tokens expired before now.
	Prune(ctx context.Context, now time.Time) (int64, error)
}
