package jwtx_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte("k"), jwtx.MinKeySize)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestHMAC(t *testing.T, clock *fakeClock) *jwtx.HMAC {
	t.Helper()
	h, err := jwtx.NewHMAC(testKey, "accounts", jwtx.WithClock(clock.Now))
	require.NoError(t, err)
	return h
}

func TestNewHMAC_ShortKey(t *testing.T) {
	_, err := jwtx.NewHMAC([]byte("short"), "accounts")
	require.ErrorIs(t, err, jwtx.ErrKeyTooShort)
}

func TestHMAC_SessionRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := newTestHMAC(t, clock)

	claims := jwtx.NewSessionClaims("user-1", "sid-1", []string{jwtx.AMRPassword}, []string{"User"},
		"alice", "alice@example.com", h.Issuer(), time.Hour, clock.now)
	tok, err := h.Sign(claims)
	require.NoError(t, err)

	got, err := h.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, []string{"User"}, got.Roles)
	require.Equal(t, "alice@example.com", got.Email)

	clock.now = clock.now.Add(2 * time.Hour)
	_, err = h.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestHMAC_PurposeBinding(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := newTestHMAC(t, clock)

	tok, err := h.Sign(jwtx.NewPurposeClaims("user-1", "PasswordReset", "stamp", h.Issuer(), time.Hour, clock.now))
	require.NoError(t, err)

	got, err := h.VerifyPurpose(tok, "PasswordReset")
	require.NoError(t, err)
	require.Equal(t, "stamp", got.Stamp)

	_, err = h.VerifyPurpose(tok, "EmailConfirmation")
	require.ErrorIs(t, err, jwtx.ErrAudience)

	_, err = h.VerifyPurpose(tok, "")
	require.ErrorIs(t, err, jwtx.ErrAudience)

	// A purpose token is not a session token.
	_, err = h.Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrAudience)
}

func TestHMAC_RejectsTampering(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	h := newTestHMAC(t, clock)

	tok, err := h.Sign(jwtx.NewPurposeClaims("user-1", "EmailConfirmation", "", h.Issuer(), time.Hour, clock.now))
	require.NoError(t, err)

	t.Run("other key", func(t *testing.T) {
		other, err := jwtx.NewHMAC(bytes.Repeat([]byte("x"), jwtx.MinKeySize), "accounts")
		require.NoError(t, err)
		_, err = other.VerifyPurpose(tok, "EmailConfirmation")
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := jwtx.NewHMAC(testKey, "someone-else")
		require.NoError(t, err)
		_, err = other.VerifyPurpose(tok, "EmailConfirmation")
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := h.VerifyPurpose("not.a.token", "EmailConfirmation")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("modified payload", func(t *testing.T) {
		parts := strings.Split(tok, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := h.VerifyPurpose(forged, "EmailConfirmation")
		require.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone,
			jwtx.NewPurposeClaims("user-1", "EmailConfirmation", "", "accounts", time.Hour, clock.now),
		).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = h.VerifyPurpose(unsigned, "EmailConfirmation")
		require.Error(t, err)
	})
}
