package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, email, email_confirmed, password_hash,
	two_factor_enabled, two_factor_secret, failed_access_count, lockout_end,
	last_login_at, first_name, last_name, version, created_at, updated_at`

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := formatTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		u.ID, u.Username, u.Email, u.EmailConfirmed, u.PasswordHash,
		u.TwoFactorEnabled, mapOptionalString(u.TwoFactorSecret), u.FailedAccessCount,
		mapOptionalTime(u.LockoutEnd), mapOptionalTime(u.LastLoginAt),
		u.FirstName, u.LastName, now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) (int64, error) {
	var version int64
	err := r.q.QueryRowContext(ctx, `
		UPDATE users SET
			username = ?, email = ?, email_confirmed = ?, password_hash = ?,
			two_factor_enabled = ?, two_factor_secret = ?, failed_access_count = ?,
			lockout_end = ?, last_login_at = ?, first_name = ?, last_name = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
		RETURNING version`,
		u.Username, u.Email, u.EmailConfirmed, u.PasswordHash,
		u.TwoFactorEnabled, mapOptionalString(u.TwoFactorSecret), u.FailedAccessCount,
		mapOptionalTime(u.LockoutEnd), mapOptionalTime(u.LastLoginAt), u.FirstName, u.LastName,
		formatTime(time.Now()),
		u.ID, u.Version,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapConstraint(err)
	}

	// No row matched: either the user is gone or someone else wrote first.
	if _, err := r.GetUserByID(ctx, u.ID); err != nil {
		return 0, err
	}
	return 0, store.ErrConcurrencyConflict
}

func (r *usersRepo) RecordFailedAccess(
	ctx context.Context,
	userID string,
	threshold int,
	lockoutUntil time.Time,
) (*time.Time, error) {
	// The CASE arms read the pre-update count, so reaching the threshold
	// locks the account and restarts the count in the same statement.
	var lockoutEnd sql.NullString
	err := r.q.QueryRowContext(ctx, `
		UPDATE users SET
			lockout_end = CASE WHEN failed_access_count + 1 >= ?1 THEN ?2 ELSE lockout_end END,
			failed_access_count = CASE WHEN failed_access_count + 1 >= ?1 THEN 0 ELSE failed_access_count + 1 END,
			version = version + 1,
			updated_at = ?3
		WHERE id = ?4
		RETURNING CASE WHEN lockout_end = ?2 THEN lockout_end END`,
		threshold, formatTime(lockoutUntil), formatTime(time.Now()), userID,
	).Scan(&lockoutEnd)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return mapNullTimePtr(lockoutEnd)
}

func (r *usersRepo) RecordSuccessfulSignIn(ctx context.Context, userID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET
			failed_access_count = 0,
			last_login_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                     domain.User
		secret                sql.NullString
		lockoutEnd, lastLogin sql.NullString
		createdAt, updatedAt  string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.EmailConfirmed, &u.PasswordHash,
		&u.TwoFactorEnabled, &secret, &u.FailedAccessCount, &lockoutEnd,
		&lastLogin, &u.FirstName, &u.LastName, &u.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.TwoFactorSecret = mapNullStringPtr(secret)
	if u.LockoutEnd, err = mapNullTimePtr(lockoutEnd); err != nil {
		return domain.User{}, fmt.Errorf("parse lockout_end: %w", err)
	}
	if u.LastLoginAt, err = mapNullTimePtr(lastLogin); err != nil {
		return domain.User{}, fmt.Errorf("parse last_login_at: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.User{}, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.User{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return u, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
