package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	rc := &jwt.RegisteredClaims{Issuer: "accounts"}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, jwtx.ValidateIssuer(rc, "accounts"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, jwtx.ValidateIssuer(rc, ""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, jwtx.ValidateIssuer(rc, "other"), jwtx.ErrIssuer)
	})
}

func TestValidateAudience(t *testing.T) {
	rc := &jwt.RegisteredClaims{Audience: []string{"PasswordReset"}}

	require.NoError(t, jwtx.ValidateAudience(rc, "PasswordReset"))
	require.NoError(t, jwtx.ValidateAudience(rc, ""))
	require.ErrorIs(t, jwtx.ValidateAudience(rc, "EmailConfirmation"), jwtx.ErrAudience)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid token", func(t *testing.T) {
		rc := &jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}
		require.NoError(t, jwtx.ValidateExpiry(rc, now, 0))
	})

	t.Run("expired token", func(t *testing.T) {
		rc := &jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}
		require.ErrorIs(t, jwtx.ValidateExpiry(rc, now, 0), jwtx.ErrExpired)
	})

	t.Run("expired at exactly exp", func(t *testing.T) {
		rc := &jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now)}
		require.ErrorIs(t, jwtx.ValidateExpiry(rc, now, 0), jwtx.ErrExpired)
	})

	t.Run("within leeway", func(t *testing.T) {
		rc := &jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second))}
		require.NoError(t, jwtx.ValidateExpiry(rc, now, 30*time.Second))
	})

	t.Run("not yet valid", func(t *testing.T) {
		rc := &jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
		}
		require.ErrorIs(t, jwtx.ValidateExpiry(rc, now, 0), jwtx.ErrNotYetValid)
	})

	t.Run("missing exp", func(t *testing.T) {
		require.ErrorIs(t, jwtx.ValidateExpiry(&jwt.RegisteredClaims{}, now, 0), jwtx.ErrInvalidClaim)
	})
}

func TestNewSessionClaims(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := jwtx.NewSessionClaims(
		"user-1", "sid-1",
		[]string{jwtx.AMRPassword, jwtx.AMROTP}, []string{"User"},
		"alice", "alice@example.com",
		"accounts", time.Hour, now,
	)

	require.Equal(t, "user-1", c.Subject)
	require.Equal(t, jwt.ClaimStrings{jwtx.SessionAudience}, c.Audience)
	require.True(t, now.Add(time.Hour).Equal(c.ExpiresAt.Time))
	require.NotEmpty(t, c.ID)
	require.True(t, c.HasAMR(jwtx.AMROTP))
	require.False(t, c.HasAMR(jwtx.AMRRecovery))
}
