package domain

import "time"

// PendingLogin remembers a user who passed the password step and still owes
// a two-factor code. The client holds an opaque token; only its fingerprint
// is stored, as ID.
type PendingLogin struct {
	ID         string
	UserID     string
	RememberMe bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
