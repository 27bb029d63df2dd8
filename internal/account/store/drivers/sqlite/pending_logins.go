package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
)

type pendingLoginsRepo struct {
	q dbtx
}

func (r *pendingLoginsRepo) CreatePendingLogin(ctx context.Context, p domain.PendingLogin) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pending_logins (id, user_id, remember_me, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.RememberMe, formatTime(p.ExpiresAt), formatTime(createdAt),
	)
	return mapConstraint(err)
}

func (r *pendingLoginsRepo) GetPendingLogin(ctx context.Context, id string) (domain.PendingLogin, error) {
	var (
		p                    domain.PendingLogin
		expiresAt, createdAt string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, remember_me, expires_at, created_at
		FROM pending_logins
		WHERE id = ? AND expires_at > ?`,
		id, formatTime(time.Now()),
	).Scan(&p.ID, &p.UserID, &p.RememberMe, &expiresAt, &createdAt)
	if err != nil {
		return domain.PendingLogin{}, mapNotFound(err)
	}

	if p.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return domain.PendingLogin{}, fmt.Errorf("parse expires_at: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.PendingLogin{}, fmt.Errorf("parse created_at: %w", err)
	}
	return p, nil
}

func (r *pendingLoginsRepo) ConsumePendingLogin(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM pending_logins WHERE id = ? AND expires_at > ?`, id, formatTime(time.Now()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *pendingLoginsRepo) DeletePendingLogin(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM pending_logins WHERE id = ?`, id)
	return err
}

func (r *pendingLoginsRepo) DeleteExpiredPendingLogins(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM pending_logins WHERE expires_at <= ?`, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
