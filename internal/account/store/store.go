package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrAlreadyExists       = errors.New("store: already exists")
	ErrConcurrencyConflict = errors.New("store: record changed concurrently")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so that a Tx hands out the same repositories bound
// to the transaction.
type Store interface {
	Users() Users
	Roles() Roles
	RecoveryCodes() RecoveryCodes
	PendingLogins() PendingLogins

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user. ErrAlreadyExists when the email or
	// username is taken; emails compare case-insensitively.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// UpdateUser writes every mutable field of u if the stored version still
	// equals u.Version, and returns the new version. ErrConcurrencyConflict
	// when the row changed since it was read.
	UpdateUser(ctx context.Context, u domain.User) (int64, error)

	// RecordFailedAccess atomically counts a failed credential check. When
	// the count reaches threshold the account is locked until lockoutUntil
	// and the count starts over. It returns the resulting lockout end, nil
	// when the account was not locked by this call.
	RecordFailedAccess(ctx context.Context, userID string, threshold int, lockoutUntil time.Time) (*time.Time, error)

	// RecordSuccessfulSignIn clears the failure count and stamps the last
	// login time.
	RecordSuccessfulSignIn(ctx context.Context, userID string, at time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Roles interface {
	// EnsureRole creates the role if it does not exist yet.
	EnsureRole(ctx context.Context, name string) error

	// AssignRole links a user to an existing role. Assigning twice is a no-op.
	AssignRole(ctx context.Context, userID, roleName string) error

	// ListRoles returns the role names of a user sorted by name.
	ListRoles(ctx context.Context, userID string) ([]string, error)
}

type RecoveryCodes interface {
	// ReplaceRecoveryCodes drops every code of the user and stores hashes.
	// Callers run it inside WithTx so readers never see a mixed set.
	ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string) error

	// ConsumeRecoveryCode deletes the matching code and reports whether
	// this call was the one that removed it.
	ConsumeRecoveryCode(ctx context.Context, userID, hash string) (bool, error)

	DeleteAllRecoveryCodes(ctx context.Context, userID string) error
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)
}

// PendingLogins holds sign-ins waiting for their second factor. It has its
// own interface because the app may keep them outside the database.
type PendingLogins interface {
	CreatePendingLogin(ctx context.Context, p domain.PendingLogin) error

	// GetPendingLogin returns an unexpired pending login by id.
	GetPendingLogin(ctx context.Context, id string) (domain.PendingLogin, error)

	// ConsumePendingLogin deletes an unexpired pending login and reports
	// whether this call was the one that removed it. Only the winner of
	// concurrent attempts may complete the sign-in.
	ConsumePendingLogin(ctx context.Context, id string) (bool, error)

	// DeletePendingLogin is idempotent.
	DeletePendingLogin(ctx context.Context, id string) error

	// DeleteExpiredPendingLogins is housekeeping; it returns the number of
	// rows removed.
	DeleteExpiredPendingLogins(ctx context.Context) (int64, error)
}
