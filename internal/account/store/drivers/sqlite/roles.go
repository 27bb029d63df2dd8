package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/accounts/internal/account/store"
)

type rolesRepo struct {
	q dbtx
}

func (r *rolesRepo) EnsureRole(ctx context.Context, name string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO roles (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (r *rolesRepo) AssignRole(ctx context.Context, userID, roleName string) error {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE name = ?)`, roleName).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("role %q: %w", roleName, store.ErrNotFound)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_name) VALUES (?, ?)`, userID, roleName)
	if err = mapConstraint(err); errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

func (r *rolesRepo) ListRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT role_name FROM user_roles WHERE user_id = ? ORDER BY role_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}
