package sqlite

import (
	"context"
	"time"
)

type recoveryCodesRepo struct {
	q dbtx
}

func (r *recoveryCodesRepo) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string) error {
	if err := r.DeleteAllRecoveryCodes(ctx, userID); err != nil {
		return err
	}

	now := formatTime(time.Now())
	for _, hash := range hashes {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO recovery_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
			userID, hash, now)
		if err != nil {
			return mapConstraint(err)
		}
	}
	return nil
}

func (r *recoveryCodesRepo) ConsumeRecoveryCode(ctx context.Context, userID, hash string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM recovery_codes WHERE user_id = ? AND code_hash = ?`, userID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *recoveryCodesRepo) DeleteAllRecoveryCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return err
}

func (r *recoveryCodesRepo) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}
