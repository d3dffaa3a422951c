package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
)

const revokedTokensTable = "expense.revoked_tokens"

// RevocationRepository stores revoked tokens in the revoked_tokens table.
type RevocationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewRevocationRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRevocationRepository(exec pgExecutor) *RevocationRepository {
	return &RevocationRepository{
		exec:    exec,
		builder: newBuilder(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Exists reports whether token has a revocation row.
func (r *RevocationRepository) Exists(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, errors.New("token must not be empty")
	}

	inner, args, err := r.builder.Select("1").From(revokedTokensTable).Where(squirrel.Eq{"token": token}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoked token lookup sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, "SELECT EXISTS ("+inner+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query revoked token: %w", err)
	}
	return exists, nil
}

// Insert adds record; a concurrent or repeated insert of the same token is a no-op.
func (r *RevocationRepository) Insert(ctx context.Context, record domain.RevocationRecord) (bool, error) {
	token := strings.TrimSpace(record.Token)
	if token == "" {
		return false, errors.New("token must not be empty")
	}
	revokedAt := record.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = r.now()
	}

	stmt, args, err := r.builder.Insert(revokedTokensTable).
		Columns("token", "expires_at", "revoked_at").
		Values(token, record.ExpiresAt.UTC(), revokedAt.UTC()).
		Suffix("ON CONFLICT (token) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert revoked token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert revoked token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Prune deletes rows whose tokens expired at or before now.
func (r *RevocationRepository) Prune(ctx context.Context, now time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(revokedTokensTable).
		Where(squirrel.LtOrEq{"expires_at": now.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune revoked tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("prune revoked tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
