package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func requireValidation(t *testing.T, err error, msg string) {
	t.Helper()
	v, ok := IsValidation(err)
	require.True(t, ok, "want validation error, got %v", err)
	require.Equal(t, msg, v.Message)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "alice@example.com")
	require.Equal(t, "alice", u.Username)
	require.False(t, u.EmailConfirmed)
	require.False(t, u.TwoFactorEnabled)
	require.NoError(t, cryptox.VerifyPassword(testPassword, u.PasswordHash))

	roles, err := f.store.Roles().ListRoles(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleUser}, roles)

	sent := f.notifier.lastConfirmation(t)
	require.Equal(t, u.Email, sent.Email)
	require.Contains(t, sent.Value, "https://accounts.example.com/auth/confirm-email?userId="+u.ID+"&token=")
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")

	cases := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{"empty email", RegisterInput{Password: testPassword, ConfirmPassword: testPassword},
			"'Email' must not be empty."},
		{"bad email", RegisterInput{Email: "alice", Password: testPassword, ConfirmPassword: testPassword},
			"'Email' is not a valid email address."},
		{"empty password", RegisterInput{Email: "bob@example.com"},
			"'Password' must not be empty."},
		{"short password", RegisterInput{Email: "bob@example.com", Password: "abc", ConfirmPassword: "abc"},
			"The length of 'Password' must be at least 8 characters. You entered 3 characters."},
		{"mismatch", RegisterInput{Email: "bob@example.com", Password: testPassword, ConfirmPassword: "other"},
			MsgPasswordConfirmMismatch},
		{"existing email", RegisterInput{Email: "alice@example.com", Password: testPassword, ConfirmPassword: testPassword},
			MsgEmailAlreadyExists},
		{"existing email other case", RegisterInput{Email: "ALICE@example.com", Password: testPassword, ConfirmPassword: testPassword},
			MsgEmailAlreadyExists},
		// The duplicate check runs before the policy.
		{"existing email weak password", RegisterInput{Email: "alice@example.com", Password: "password", ConfirmPassword: "password"},
			MsgEmailAlreadyExists},
		{"weak password", RegisterInput{Email: "bob@example.com", Password: "password1", ConfirmPassword: "password1"},
			"Registration failed: Passwords must have at least one non alphanumeric character., " +
				"Passwords must have at least one uppercase ('A'-'Z')."},
		{"username taken", RegisterInput{Email: "alice@example.org", Password: testPassword, ConfirmPassword: testPassword},
			"Registration failed: Username 'alice' is already taken."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.accounts.Register(ctx, f.rc, tc.in)
			requireValidation(t, err, tc.want)
		})
	}
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice@example.com")
	q := linkParams(t, f.notifier.lastConfirmation(t).Value)

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.accounts.ConfirmEmail(ctx, f.rc, "", "x")
		requireValidation(t, err, "'User Id' must not be empty.")
		_, err = f.accounts.ConfirmEmail(ctx, f.rc, u.ID, "")
		requireValidation(t, err, "'Token' must not be empty.")
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.accounts.ConfirmEmail(ctx, f.rc, "missing", q.Get("token"))
		requireValidation(t, err, MsgInvalidUser)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := f.accounts.ConfirmEmail(ctx, f.rc, u.ID, "garbage")
		requireValidation(t, err, "Email confirmation failed: Invalid token.")
		require.False(t, f.reload(t, u.ID).EmailConfirmed)
	})

	t.Run("reset token is not a confirmation token", func(t *testing.T) {
		tok, err := f.tokens.IssueFor(u, domain.PurposePasswordReset)
		require.NoError(t, err)
		_, err = f.accounts.ConfirmEmail(ctx, f.rc, u.ID, tok)
		requireValidation(t, err, "Email confirmation failed: Invalid token.")
	})

	t.Run("valid token, twice", func(t *testing.T) {
		for range 2 {
			msg, err := f.accounts.ConfirmEmail(ctx, f.rc, q.Get("userId"), q.Get("token"))
			require.NoError(t, err)
			require.Equal(t, MsgEmailConfirmed, msg)
		}
		require.True(t, f.reload(t, u.ID).EmailConfirmed)
	})
}

func TestResendEmailConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")
	f.registerConfirmed(t, "bob@example.com")
	sentBefore := len(f.notifier.confirmations)

	for _, email := range []string{"alice@example.com", "bob@example.com", "nobody@example.com"} {
		msg, err := f.accounts.ResendEmailConfirmation(ctx, f.rc, email)
		require.NoError(t, err)
		require.Equal(t, MsgConfirmationSent, msg)
	}
	require.Len(t, f.notifier.confirmations, sentBefore+1)
	require.Equal(t, "alice@example.com", f.notifier.lastConfirmation(t).Email)

	_, err := f.accounts.ResendEmailConfirmation(ctx, f.rc, "")
	requireValidation(t, err, "'Email' must not be empty.")
}

func TestForgotPassword_DoesNotRevealAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pending@example.com")
	f.registerConfirmed(t, "alice@example.com")

	var replies []string
	for _, email := range []string{"alice@example.com", "pending@example.com", "nobody@example.com"} {
		msg, err := f.accounts.ForgotPassword(ctx, f.rc, email)
		require.NoError(t, err)
		replies = append(replies, msg)
	}
	require.Equal(t, []string{MsgResetLinkSent, MsgResetLinkSent, MsgResetLinkSent}, replies)

	require.Len(t, f.notifier.resets, 1)
	sent := f.notifier.lastReset(t)
	require.Equal(t, "alice@example.com", sent.Email)
	require.Contains(t, sent.Value, "https://accounts.example.com/auth/reset-password?email=alice%40example.com&token=")
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")

	_, err := f.accounts.ForgotPassword(ctx, f.rc, u.Email)
	require.NoError(t, err)
	token := linkParams(t, f.notifier.lastReset(t).Value).Get("token")

	in := ResetPasswordInput{Email: u.Email, Token: token, Password: "N3wPassw0rd!", ConfirmPassword: "N3wPassw0rd!"}

	t.Run("field rules", func(t *testing.T) {
		bad := in
		bad.Password, bad.ConfirmPassword = "abc", "abc"
		_, err := f.accounts.ResetPassword(ctx, f.rc, bad)
		requireValidation(t, err, "The length of 'Password' must be at least 6 characters. You entered 3 characters.")
	})

	t.Run("unknown email", func(t *testing.T) {
		bad := in
		bad.Email = "nobody@example.com"
		_, err := f.accounts.ResetPassword(ctx, f.rc, bad)
		requireValidation(t, err, MsgInvalidRequest)
	})

	t.Run("token is checked before the policy", func(t *testing.T) {
		bad := in
		bad.Token = "garbage"
		bad.Password, bad.ConfirmPassword = "weakpass", "weakpass"
		_, err := f.accounts.ResetPassword(ctx, f.rc, bad)
		requireValidation(t, err, "Password reset failed: Invalid token.")
	})

	t.Run("policy", func(t *testing.T) {
		bad := in
		bad.Password, bad.ConfirmPassword = "weakpass", "weakpass"
		_, err := f.accounts.ResetPassword(ctx, f.rc, bad)
		requireValidation(t, err, "Password reset failed: "+
			"Passwords must have at least one non alphanumeric character., "+
			"Passwords must have at least one digit ('0'-'9')., "+
			"Passwords must have at least one uppercase ('A'-'Z').")
	})

	t.Run("success then reuse", func(t *testing.T) {
		msg, err := f.accounts.ResetPassword(ctx, f.rc, in)
		require.NoError(t, err)
		require.Equal(t, MsgPasswordReset, msg)
		require.NoError(t, cryptox.VerifyPassword("N3wPassw0rd!", f.reload(t, u.ID).PasswordHash))

		_, err = f.accounts.ResetPassword(ctx, f.rc, in)
		requireValidation(t, err, "Password reset failed: Invalid token.")
	})
}

func TestResetToken_DiesWithPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")

	_, err := f.accounts.ForgotPassword(ctx, f.rc, u.Email)
	require.NoError(t, err)
	token := linkParams(t, f.notifier.lastReset(t).Value).Get("token")

	rc := f.signedIn(u)
	_, err = f.accounts.ChangePassword(ctx, rc, ChangePasswordInput{
		CurrentPassword: testPassword, NewPassword: "Other0ne!", ConfirmNewPassword: "Other0ne!",
	})
	require.NoError(t, err)

	_, err = f.accounts.ResetPassword(ctx, f.rc, ResetPasswordInput{
		Email: u.Email, Token: token, Password: "N3wPassw0rd!", ConfirmPassword: "N3wPassw0rd!",
	})
	requireValidation(t, err, "Password reset failed: Invalid token.")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")
	rc := f.signedIn(u)

	in := ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "N3wPassw0rd!", ConfirmNewPassword: "N3wPassw0rd!"}

	t.Run("input is checked before the caller", func(t *testing.T) {
		_, err := f.accounts.ChangePassword(ctx, f.rc, ChangePasswordInput{})
		requireValidation(t, err, "'Current Password' must not be empty.")

		bad := in
		bad.ConfirmNewPassword = "nope"
		_, err = f.accounts.ChangePassword(ctx, f.rc, bad)
		requireValidation(t, err, MsgNewPasswordConfirmMismatch)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.accounts.ChangePassword(ctx, f.rc, in)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("wrong current password", func(t *testing.T) {
		bad := in
		bad.CurrentPassword = "Wr0ngPass!"
		_, err := f.accounts.ChangePassword(ctx, rc, bad)
		requireValidation(t, err, "Password change failed: Incorrect password.")
	})

	t.Run("success", func(t *testing.T) {
		msg, err := f.accounts.ChangePassword(ctx, rc, in)
		require.NoError(t, err)
		require.Equal(t, MsgPasswordChanged, msg)

		_, err = f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
		require.ErrorIs(t, err, ErrUnauthorized)
		_, err = f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: in.NewPassword})
		require.NoError(t, err)
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")

	t.Run("field rules", func(t *testing.T) {
		_, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email})
		requireValidation(t, err, "'Password' must not be empty.")
	})

	t.Run("session carries roles", func(t *testing.T) {
		res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, MsgLoginSuccessful, res.Message)
		require.False(t, res.RequiresTwoFactor)
		require.NotNil(t, res.Session)

		claims, err := f.tokens.Signer.Verify(res.Session.AccessToken)
		require.NoError(t, err)
		require.Equal(t, u.ID, claims.Subject)
		require.Equal(t, []string{domain.RoleUser}, claims.Roles)
	})
}

func TestTwoFactorLoginScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.enableTwoFactor(t, f.registerConfirmed(t, "alice@example.com"))

	_, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, f.reload(t, u.ID).FailedAccessCount)

	res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	require.True(t, res.RequiresTwoFactor)
	require.Equal(t, MsgTwoFactorRequired, res.Message)
	require.Nil(t, res.Session)

	rc := f.rc
	rc.PendingToken = res.TwoFactorToken

	_, err = f.accounts.LoginTwoFactor(ctx, rc, LoginTwoFactorInput{})
	requireValidation(t, err, "'Code' must not be empty.")

	res, err = f.accounts.LoginTwoFactor(ctx, rc, LoginTwoFactorInput{Code: f.code(t, u, 0)})
	require.NoError(t, err)
	require.Equal(t, MsgLoginSuccessful, res.Message)
	require.NotNil(t, res.Session)

	stored := f.reload(t, u.ID)
	require.Zero(t, stored.FailedAccessCount)
	require.NotNil(t, stored.LastLoginAt)
}

func TestLoginTwoFactor_RecoveryCodeMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.enableTwoFactor(t, f.registerConfirmed(t, "alice@example.com"))

	rc := f.signedIn(u)
	codes, err := f.accounts.GenerateRecoveryCodes(ctx, rc)
	require.NoError(t, err)
	require.Equal(t, MsgRecoveryCodesGenerated, codes.Message)
	require.Len(t, codes.Codes, DefaultRecoveryCodeCount)

	res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)

	pending := f.rc
	pending.PendingToken = res.TwoFactorToken
	res, err = f.accounts.LoginTwoFactor(ctx, pending, LoginTwoFactorInput{Code: codes.Codes[0], RememberMachine: true})
	require.NoError(t, err)
	require.Equal(t, MsgLoginWithRecoveryCode, res.Message)
	require.NotEmpty(t, res.DeviceToken)

	res, err = f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword, DeviceToken: res.DeviceToken})
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFactor)
	require.NotNil(t, res.Session)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.enableTwoFactor(t, f.registerConfirmed(t, "alice@example.com"))

	res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)

	rc := f.rc
	rc.PendingToken = res.TwoFactorToken
	require.Equal(t, MsgLogoutSuccessful, f.accounts.Logout(ctx, rc))
	require.Equal(t, MsgLogoutSuccessful, f.accounts.Logout(ctx, f.rc))

	_, err = f.accounts.LoginTwoFactor(ctx, rc, LoginTwoFactorInput{Code: f.code(t, u, 0)})
	requireValidation(t, err, MsgTwoFactorUserMissing)
}

func TestTwoFactorManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")
	rc := f.signedIn(u)

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.accounts.EnableTwoFactor(ctx, f.rc)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("recovery codes need two-factor", func(t *testing.T) {
		_, err := f.accounts.GenerateRecoveryCodes(ctx, rc)
		requireValidation(t, err, MsgRecoveryNeedsTwoFactor)
	})

	t.Run("disable when off", func(t *testing.T) {
		_, err := f.accounts.DisableTwoFactor(ctx, rc)
		requireValidation(t, err, MsgTwoFactorNotEnabled)
	})

	var shared string
	t.Run("enable returns the same key until verified", func(t *testing.T) {
		first, err := f.accounts.EnableTwoFactor(ctx, rc)
		require.NoError(t, err)
		require.Contains(t, first.AuthenticatorURI, "otpauth://totp/Accounts:alice%40example.com?secret=")
		require.Contains(t, first.AuthenticatorURI, "&issuer=Accounts&digits=6")

		second, err := f.accounts.EnableTwoFactor(ctx, rc)
		require.NoError(t, err)
		require.Equal(t, first.SharedKey, second.SharedKey)
		shared = first.SharedKey

		require.False(t, f.reload(t, u.ID).TwoFactorEnabled)
	})

	t.Run("verify rejects malformed and wrong codes", func(t *testing.T) {
		_, err := f.accounts.VerifyTwoFactor(ctx, rc, "")
		requireValidation(t, err, "'Code' must not be empty.")
		_, err = f.accounts.VerifyTwoFactor(ctx, rc, "12ab56")
		requireValidation(t, err, MsgCodeMustBeSixDigits)

		code := f.code(t, f.reload(t, u.ID), 0)
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		_, err = f.accounts.VerifyTwoFactor(ctx, rc, wrong)
		requireValidation(t, err, MsgInvalidVerificationCode)
	})

	t.Run("verify enables", func(t *testing.T) {
		status, err := f.accounts.VerifyTwoFactor(ctx, rc, f.code(t, f.reload(t, u.ID), 0))
		require.NoError(t, err)
		require.Equal(t, TwoFactorStatus{Message: MsgTwoFactorEnabled, IsEnabled: true}, status)

		_, err = f.accounts.EnableTwoFactor(ctx, rc)
		requireValidation(t, err, MsgTwoFactorAlreadyOn)
	})

	t.Run("disable rotates the secret", func(t *testing.T) {
		status, err := f.accounts.DisableTwoFactor(ctx, rc)
		require.NoError(t, err)
		require.Equal(t, TwoFactorStatus{Message: MsgTwoFactorDisabled}, status)

		again, err := f.accounts.EnableTwoFactor(ctx, rc)
		require.NoError(t, err)
		require.NotEqual(t, shared, again.SharedKey)
	})
}

func TestSessionEndsWithPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.enableTwoFactor(t, f.registerConfirmed(t, "alice@example.com"))

	res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: u.Email, Password: testPassword})
	require.NoError(t, err)
	pending := f.rc
	pending.PendingToken = res.TwoFactorToken
	res, err = f.accounts.LoginTwoFactor(ctx, pending, LoginTwoFactorInput{Code: f.code(t, u, 0)})
	require.NoError(t, err)

	claims, err := f.tokens.VerifySession(res.Session.AccessToken)
	require.NoError(t, err)
	session := f.rc
	session.UserID = claims.Subject
	session.SessionStamp = claims.Stamp

	_, err = f.accounts.GetUserInfo(ctx, session)
	require.NoError(t, err)

	_, err = f.accounts.ForgotPassword(ctx, f.rc, u.Email)
	require.NoError(t, err)
	token := linkParams(t, f.notifier.lastReset(t).Value).Get("token")
	_, err = f.accounts.ResetPassword(ctx, f.rc, ResetPasswordInput{
		Email: u.Email, Token: token, Password: "N3wPassw0rd!", ConfirmPassword: "N3wPassw0rd!",
	})
	require.NoError(t, err)

	_, err = f.accounts.DisableTwoFactor(ctx, session)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.True(t, f.reload(t, u.ID).TwoFactorEnabled)

	_, err = f.accounts.GetUserInfo(ctx, session)
	require.ErrorIs(t, err, ErrUnauthorized)

	// A session without a stamp never matches.
	unstamped := f.rc
	unstamped.UserID = u.ID
	_, err = f.accounts.GetUserInfo(ctx, unstamped)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionEndsWithPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")
	rc := f.signedIn(u)

	_, err := f.accounts.ChangePassword(ctx, rc, ChangePasswordInput{
		CurrentPassword: testPassword, NewPassword: "N3wPassw0rd!", ConfirmNewPassword: "N3wPassw0rd!",
	})
	require.NoError(t, err)

	_, err = f.accounts.GetUserInfo(ctx, rc)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.accounts.GetUserInfo(ctx, f.signedIn(f.reload(t, u.ID)))
	require.NoError(t, err)
}

func TestGetUserInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerConfirmed(t, "alice@example.com")

	_, err := f.accounts.GetUserInfo(ctx, f.rc)
	require.ErrorIs(t, err, ErrUnauthorized)

	rc := f.signedIn(u)
	info, err := f.accounts.GetUserInfo(ctx, rc)
	require.NoError(t, err)
	require.Equal(t, u.Email, info.Email)
	require.Equal(t, []string{domain.RoleUser}, info.Roles)
}

func TestSeedAdmin(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slogx.NewWithWriter(&logs, slogx.Config{Level: "info"}))

	created, err := f.accounts.SeedAdmin(ctx, "", "")
	require.NoError(t, err)
	require.False(t, created)
	require.Contains(t, logs.String(), "no accounts exist and no admin email is configured")

	_, err = f.accounts.SeedAdmin(ctx, "not-an-email", testPassword)
	require.Error(t, err)

	_, err = f.accounts.SeedAdmin(ctx, "admin@example.com", "weak")
	require.Error(t, err)

	created, err = f.accounts.SeedAdmin(ctx, "admin@example.com", testPassword)
	require.NoError(t, err)
	require.True(t, created)

	created, err = f.accounts.SeedAdmin(ctx, "admin@example.com", testPassword)
	require.NoError(t, err)
	require.False(t, created)

	admin, err := f.store.Users().GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.True(t, admin.EmailConfirmed)
	require.Equal(t, "System", admin.FirstName)

	roles, err := f.store.Roles().ListRoles(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleAdmin}, roles)

	res, err := f.accounts.Login(ctx, f.rc, LoginInput{Email: "admin@example.com", Password: testPassword})
	require.NoError(t, err)
	require.NotNil(t, res.Session)

	logs.Reset()
	_, err = f.accounts.SeedAdmin(ctx, "", "")
	require.NoError(t, err)
	require.NotContains(t, logs.String(), "no accounts exist")
}
