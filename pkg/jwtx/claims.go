package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionAudience is the audience of every session token.
	SessionAudience = "session"

	// DefaultSessionTTL is used when a sign-in does not ask to be remembered.
	DefaultSessionTTL = time.Hour

	// DefaultRememberedSessionTTL matches a persistent sign-in cookie.
	DefaultRememberedSessionTTL = 14 * 24 * time.Hour
)

// Authentication method references carried in Claims.AMR.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRRecovery = "rec"
	AMRDevice   = "dev"
)

// Claims are the claims of a session token issued after a successful
// sign-in.
type Claims struct {
	jwt.RegisteredClaims

	// SID identifies the sign-in that produced this token.
	SID string `json:"sid,omitempty"`

	// AMR lists how the user proved who they are, ["pwd","otp"].
	AMR []string `json:"amr,omitempty"`

	Roles    []string `json:"roles,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`

	// Stamp binds the session to the account's credentials at sign-in.
	Stamp string `json:"stm,omitempty"`
}

// PurposeClaims are the claims of a single-purpose token such as an email
// confirmation or password reset link. The purpose travels in the audience
// so a token minted for one purpose never validates for another.
type PurposeClaims struct {
	jwt.RegisteredClaims

	// Stamp binds the token to a piece of account state at issuance. When
	// that state changes the token stops validating.
	Stamp string `json:"stm,omitempty"`
}

// NewSessionClaims builds session claims valid from now for ttl.
func NewSessionClaims(
	subject, sid string,
	amr, roles []string,
	username, email string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: newRegistered(subject, issuer, SessionAudience, ttl, now),
		SID:              sid,
		AMR:              amr,
		Roles:            roles,
		Username:         username,
		Email:            email,
	}
}

// NewPurposeClaims builds claims for a purpose token valid from now for ttl.
func NewPurposeClaims(subject, purpose, stamp, issuer string, ttl time.Duration, now time.Time) PurposeClaims {
	return PurposeClaims{
		RegisteredClaims: newRegistered(subject, issuer, purpose, ttl, now),
		Stamp:            stamp,
	}
}

func newRegistered(subject, issuer, audience string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        NewJTI(),
	}
}

// NewJTI returns a random URL-safe identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasAMR reports whether the session was authenticated with method.
func (c *Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

// ValidateIssuer checks the issuer. An empty expectation is not enforced.
func ValidateIssuer(rc *jwt.RegisteredClaims, expected string) error {
	if expected == "" {
		return nil
	}
	if rc.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that expected is one of the token's audiences.
func ValidateAudience(rc *jwt.RegisteredClaims, expected string) error {
	if expected == "" {
		return nil
	}
	if !slices.Contains(rc.Audience, expected) {
		return ErrAudience
	}
	return nil
}

// ValidateExpiry checks exp and nbf against now with leeway for clock skew.
func ValidateExpiry(rc *jwt.RegisteredClaims, now time.Time, leeway time.Duration) error {
	if rc.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(rc.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if rc.NotBefore != nil && now.Before(rc.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
