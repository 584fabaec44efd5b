package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joblink/joblink-web/internal/data/pgxutil"
	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	apperrors "github.com/joblink/joblink-web/internal/errors"
	"github.com/joblink/joblink-web/internal/ports"
)

var _ ports.RoleStore = (*RoleRepo)(nil)

// RoleAssignment is one row of user_roles.
type RoleAssignment struct {
	UserID    string          `json:"user_id"`
	Role      domainauth.Role `json:"role"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RoleRepo persists role assignments in Postgres.
type RoleRepo struct {
	db *sql.DB
}

// NewRoleRepo creates a new RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// LookupRole returns the stored role for userID, or ports.ErrRoleNotFound when there is no row.
// A stored value outside the known roles comes back as domainauth.RoleUnknown.
func (r *RoleRepo) LookupRole(ctx context.Context, userID string) (domainauth.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ports.ErrRoleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup role: %w", apperrors.MapDBError(err))
	}
	return domainauth.ParseRole(role), nil
}

// Assign creates or replaces the role for userID.
func (r *RoleRepo) Assign(ctx context.Context, userID string, role domainauth.Role) error {
	if err := validateAssignment(userID, role); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertRoleSQL, userID, string(role)); err != nil {
		return fmt.Errorf("assign role: %w", apperrors.MapDBError(err))
	}
	return nil
}

const upsertRoleSQL = `
	INSERT INTO user_roles (user_id, role)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`

// AssignMany upserts every assignment in one transaction. Nothing is written if any row is invalid.
func (r *RoleRepo) AssignMany(ctx context.Context, assignments []RoleAssignment) error {
	for _, a := range assignments {
		if err := validateAssignment(a.UserID, a.Role); err != nil {
			return err
		}
	}
	err := pgxutil.WithSQLTx(ctx, r.db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		for _, a := range assignments {
			if _, err := tx.ExecContext(ctx, upsertRoleSQL, a.UserID, string(a.Role)); err != nil {
				return fmt.Errorf("assign role for %s: %w", a.UserID, apperrors.MapDBError(err))
			}
		}
		return nil
	}})
	if err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}
	return nil
}

// Revoke removes the assignment for userID. The user falls back to the default role afterwards.
func (r *RoleRepo) Revoke(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("no role assignment for %s", userID)
	}
	return nil
}

// List returns assignments ordered by user id, optionally filtered by role.
func (r *RoleRepo) List(ctx context.Context, role domainauth.Role) ([]RoleAssignment, error) {
	query := `SELECT user_id, role, updated_at FROM user_roles ORDER BY user_id`
	args := []any{}
	if role != "" {
		query = `SELECT user_id, role, updated_at FROM user_roles WHERE role = $1 ORDER BY user_id`
		args = append(args, string(role))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var stored string
		if err := rows.Scan(&a.UserID, &stored, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		a.Role = domainauth.ParseRole(stored)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

func validateAssignment(userID string, role domainauth.Role) error {
	if userID == "" {
		return apperrors.ValidationField("user_id", "user id is required")
	}
	if !role.Valid() {
		return apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
	}
	return nil
}
