package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/expense-iam/internal/core/domain"
	"github.com/arklim/expense-iam/internal/core/port"
	"github.com/arklim/expense-iam/internal/repository"
)

const (
	principalsTable     = "expense.principals"
	rolesTable          = "expense.roles"
	principalRolesTable = "expense.principal_roles"
)

var principalColumns = []string{
	"id",
	"email",
	"first_name",
	"last_name",
	"employee_id",
	"password_hash",
	"is_active",
	"is_deleted",
	"failed_login_attempts",
	"last_failed_attempt",
	"locked_until",
	"password_changed_at",
}

// PrincipalRepository implements port.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *PrincipalRepository) WithTx(tx pgx.Tx) *PrincipalRepository {
	if tx == nil {
		return r
	}
	return &PrincipalRepository{exec: tx, builder: r.builder}
}

// FindByEmail returns the live principal with the given email, compared case-insensitively.
func (r *PrincipalRepository) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.findOne(ctx, squirrel.Expr("lower(email) = lower(?)", strings.TrimSpace(email)))
}

// FindWithRoles is FindByEmail with role names attached.
func (r *PrincipalRepository) FindWithRoles(ctx context.Context, email string) (*domain.Principal, error) {
	principal, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	roles, err := r.rolesOf(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	principal.Roles = roles
	return principal, nil
}

// FindByID returns the live principal with the given id.
func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

func (r *PrincipalRepository) findOne(ctx context.Context, pred squirrel.Sqlizer) (*domain.Principal, error) {
	stmt, args, err := r.builder.
		Select(principalColumns...).
		From(principalsTable).
		Where(pred).
		Where(squirrel.Eq{"is_deleted": false}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	var (
		principal         domain.Principal
		employeeID        sql.NullString
		lastFailedAttempt sql.NullTime
		lockedUntil       sql.NullTime
		passwordChangedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&principal.ID,
		&principal.Email,
		&principal.FirstName,
		&principal.LastName,
		&employeeID,
		&principal.PasswordHash,
		&principal.Active,
		&principal.Deleted,
		&principal.FailedAttempts,
		&lastFailedAttempt,
		&lockedUntil,
		&passwordChangedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	if employeeID.Valid {
		principal.EmployeeID = employeeID.String
	}
	principal.LastFailedAttempt = nullableTimePtr(lastFailedAttempt)
	principal.LockedUntil = nullableTimePtr(lockedUntil)
	principal.PasswordChangedAt = nullableTimePtr(passwordChangedAt)

	return &principal, nil
}

func (r *PrincipalRepository) rolesOf(ctx context.Context, principalID string) ([]string, error) {
	stmt, args, err := r.builder.
		Select("r.name").
		From(rolesTable + " r").
		Join(principalRolesTable + " pr ON pr.role_id = r.id").
		Where(squirrel.Eq{"pr.principal_id": principalID}).
		OrderBy("r.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query principal roles: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan principal role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principal roles: %w", err)
	}
	return roles, nil
}

// Save persists the lockout fields of principal.
func (r *PrincipalRepository) Save(ctx context.Context, principal *domain.Principal) error {
	if principal == nil {
		return errors.New("principal is required")
	}

	stmt, args, err := r.builder.Update(principalsTable).
		Set("failed_login_attempts", principal.FailedAttempts).
		Set("last_failed_attempt", nullableTime(principal.LastFailedAttempt)).
		Set("locked_until", nullableTime(principal.LockedUntil)).
		Where(squirrel.Eq{"id": principal.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update principal lockout sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update principal lockout: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash of a live principal.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(principalsTable).
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt.UTC()).
		Where(squirrel.Eq{"id": id, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update principal password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update principal password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateWithRoles inserts principal and grants roles in one transaction.
// It reports false and changes nothing when the email is already taken.
func (r *PrincipalRepository) CreateWithRoles(ctx context.Context, principal *domain.Principal, roles []string) (bool, error) {
	if principal == nil {
		return false, errors.New("principal is required")
	}

	beginner, ok := r.exec.(txBeginner)
	if !ok {
		return r.createWithRoles(ctx, principal, roles)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin create principal: %w", err)
	}
	created, err := r.WithTx(tx).createWithRoles(ctx, principal, roles)
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit create principal: %w", err)
	}
	return created, nil
}

func (r *PrincipalRepository) createWithRoles(ctx context.Context, principal *domain.Principal, roles []string) (bool, error) {
	stmt, args, err := r.builder.Insert(principalsTable).
		Columns("id", "email", "first_name", "last_name", "employee_id", "password_hash", "is_active", "password_changed_at").
		Values(
			principal.ID,
			strings.TrimSpace(principal.Email),
			principal.FirstName,
			principal.LastName,
			nullableString(principal.EmployeeID),
			principal.PasswordHash,
			principal.Active,
			nullableTime(principal.PasswordChangedAt),
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert principal sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert principal: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	if len(roles) == 0 {
		return true, nil
	}

	stmt, args, err = r.builder.Insert(principalRolesTable).
		Columns("principal_id", "role_id").
		Select(squirrel.Select().
			Column(squirrel.Expr("?::uuid", principal.ID)).
			Column("id").
			From(rolesTable).
			Where(squirrel.Eq{"name": roles})).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert principal roles sql: %w", err)
	}

	ct, err = r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("insert principal roles: %w", err)
	}
	if ct.RowsAffected() != int64(len(roles)) {
		return false, fmt.Errorf("grant roles %v: %d of %d roles exist", roles, ct.RowsAffected(), len(roles))
	}
	return true, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
