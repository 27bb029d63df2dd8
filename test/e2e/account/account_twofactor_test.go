package account_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
)

// enrollTwoFactor turns on two-factor for the session's user and returns
// the TOTP secret.
func enrollTwoFactor(t *testing.T, session *authsdk.Session) string {
	t.Helper()
	ctx := t.Context()

	enroll, err := session.EnableTwoFactor(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(enroll.AuthenticatorURI, "otpauth://totp/"))

	secret := strings.ToUpper(strings.ReplaceAll(enroll.SharedKey, " ", ""))
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	status, err := session.VerifyTwoFactor(ctx, code)
	require.NoError(t, err)
	require.True(t, status.IsEnabled)

	return secret
}

// amrOf reads the amr claim of an access token without verifying it.
func amrOf(t *testing.T, accessToken string) []string {
	t.Helper()
	var claims jwtx.Claims
	_, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims)
	require.NoError(t, err)
	return claims.AMR
}

// TestTwoFactorSignIn tests enrollment and both ways of passing the second
// factor.
func TestTwoFactorSignIn(t *testing.T) {
	svc, cleanup := setupAccountContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(svc.BaseURL)
	ctx := t.Context()

	session := performLogin(t, client, adminEmail, adminPassword)
	secret := enrollTwoFactor(t, session)

	codes, err := session.GenerateRecoveryCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes.RecoveryCodes, 10)
	t.Logf("Received %d recovery codes", len(codes.RecoveryCodes))

	login := func() *authsdk.LoginResponse {
		resp, err := client.Login(ctx, authsdk.LoginRequest{Email: adminEmail, Password: adminPassword})
		require.NoError(t, err)
		require.True(t, resp.RequiresTwoFactor)
		require.NotEmpty(t, resp.TwoFactorToken)
		require.Empty(t, resp.AccessToken)
		return resp
	}

	// A code from the authenticator
	challenge := login()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	resp, err := client.LoginTwoFactor(ctx, challenge.TwoFactorToken, authsdk.LoginTwoFactorRequest{Code: code})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.ElementsMatch(t, []string{jwtx.AMRPassword, jwtx.AMROTP}, amrOf(t, resp.AccessToken))

	// The challenge is gone once used
	_, err = client.LoginTwoFactor(ctx, challenge.TwoFactorToken, authsdk.LoginTwoFactorRequest{Code: code})
	assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidation)

	// A recovery code, remembering the device
	challenge = login()
	resp, err = client.LoginTwoFactor(ctx, challenge.TwoFactorToken, authsdk.LoginTwoFactorRequest{
		Code:            strings.ToLower(codes.RecoveryCodes[0]),
		RememberMachine: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.DeviceToken)
	require.ElementsMatch(t, []string{jwtx.AMRPassword, jwtx.AMRRecovery}, amrOf(t, resp.AccessToken))

	// The recovery code is spent
	challenge = login()
	_, err = client.LoginTwoFactor(ctx, challenge.TwoFactorToken, authsdk.LoginTwoFactorRequest{Code: codes.RecoveryCodes[0]})
	assertAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidation)

	// The remembered device skips the second factor
	remembered, err := client.Login(ctx, authsdk.LoginRequest{
		Email:       adminEmail,
		Password:    adminPassword,
		DeviceToken: resp.DeviceToken,
	})
	require.NoError(t, err)
	require.False(t, remembered.RequiresTwoFactor)
	require.ElementsMatch(t, []string{jwtx.AMRPassword, jwtx.AMRDevice}, amrOf(t, remembered.AccessToken))
}

// TestDisableTwoFactor verifies disabling two-factor invalidates the old
// secret and the remembered devices.
func TestDisableTwoFactor(t *testing.T) {
	svc, cleanup := setupAccountContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(svc.BaseURL)
	ctx := t.Context()

	session := performLogin(t, client, adminEmail, adminPassword)
	secret := enrollTwoFactor(t, session)

	challenge, err := client.Login(ctx, authsdk.LoginRequest{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp, err := client.LoginTwoFactor(ctx, challenge.TwoFactorToken, authsdk.LoginTwoFactorRequest{
		Code:            code,
		RememberMachine: true,
	})
	require.NoError(t, err)

	status, err := session.DisableTwoFactor(ctx)
	require.NoError(t, err)
	require.False(t, status.IsEnabled)

	// Signing in needs only the password again
	performLogin(t, client, adminEmail, adminPassword)

	// Re-enrolling gets a new secret, and the old device token no longer
	// skips the second factor
	newSecret := enrollTwoFactor(t, session)
	require.NotEqual(t, secret, newSecret)

	again, err := client.Login(ctx, authsdk.LoginRequest{
		Email:       adminEmail,
		Password:    adminPassword,
		DeviceToken: resp.DeviceToken,
	})
	require.NoError(t, err)
	require.True(t, again.RequiresTwoFactor)
}
