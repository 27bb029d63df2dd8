package domain

import "time"

type User struct {
	ID                string
	Username          string
	Email             string
	EmailConfirmed    bool
	PasswordHash      string  // argon2id encoded, peppered
	TwoFactorEnabled  bool    // set by a verified code, cleared on disable
	TwoFactorSecret   *string // TOTP secret (nullable, base32 encoded)
	FailedAccessCount int
	LockoutEnd        *time.Time
	LastLoginAt       *time.Time
	FirstName         string
	LastName          string

	// Version guards UpdateUser against lost updates. The store bumps it on
	// every write.
	Version int64

	// Roles is only populated by callers that load it explicitly.
	Roles []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLockedOut reports whether sign-in is blocked at now.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// HasSecret reports whether a TOTP secret has been provisioned.
func (u User) HasSecret() bool {
	return u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}
