package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/idx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// RequestContext carries what a use-case needs to know about its caller.
type RequestContext struct {
	// UserID is the authenticated user, empty for anonymous callers.
	UserID string

	// SessionStamp is the stamp carried by the caller's session.
	SessionStamp string

	// PendingToken identifies a sign-in waiting for its second factor.
	PendingToken string

	// BaseURL is the externally visible origin used to build links in
	// emails, without a trailing slash.
	BaseURL string
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

type ResetPasswordInput struct {
	Email           string
	Token           string
	Password        string
	ConfirmPassword string
}

type ChangePasswordInput struct {
	CurrentPassword    string
	NewPassword        string
	ConfirmNewPassword string
}

type LoginInput struct {
	Email       string
	Password    string
	RememberMe  bool
	DeviceToken string
}

type LoginTwoFactorInput struct {
	Code            string
	RememberMe      bool
	RememberMachine bool
}

// LoginResult is either a two-factor challenge or an established session.
type LoginResult struct {
	Message           string
	RequiresTwoFactor bool
	TwoFactorToken    string
	Session           *Session
	DeviceToken       string
}

type EnableTwoFactorResult struct {
	SharedKey        string
	AuthenticatorURI string
}

type TwoFactorStatus struct {
	Message   string
	IsEnabled bool
}

type RecoveryCodesResult struct {
	Codes   []string
	Message string
}

// AccountService implements the account use-cases. Each one checks its own
// input in a fixed order and returns a result or one of the error kinds in
// errors.go.
type AccountService struct {
	Store             store.Store
	SignIn            *SignInService
	Tokens            *TokenService
	TOTP              *TOTPEngine
	Notifier          Notifier
	Policy            PasswordPolicy
	RecoveryCodeCount int
}

func NewAccountService(
	s store.Store,
	signIn *SignInService,
	notifier Notifier,
	policy PasswordPolicy,
) *AccountService {
	return &AccountService{
		Store:             s,
		SignIn:            signIn,
		Tokens:            signIn.Tokens,
		TOTP:              signIn.TOTP,
		Notifier:          notifier,
		Policy:            policy,
		RecoveryCodeCount: DefaultRecoveryCodeCount,
	}
}

// ============================================================================
// Registration and email confirmation
// ============================================================================

// Register creates an unconfirmed account with the User role and sends a
// confirmation link. Unlike the other anonymous flows it reveals that an
// email is already registered.
func (s *AccountService) Register(ctx context.Context, rc RequestContext, in RegisterInput) (string, error) {
	err := firstFailure(
		notEmpty("Email", in.Email),
		emailAddress("Email", in.Email),
		notEmpty("Password", in.Password),
		minLength("Password", in.Password, 8),
		equalTo(in.ConfirmPassword, in.Password, MsgPasswordConfirmMismatch),
	)
	if err != nil {
		return "", err
	}

	_, err = s.Store.Users().GetUserByEmail(ctx, in.Email)
	if err == nil {
		return "", &ValidationError{Message: MsgEmailAlreadyExists}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}

	if problems := s.Policy.Check(in.Password); len(problems) > 0 {
		return "", validationf("Registration failed: %s", strings.Join(problems, ", "))
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     usernameFromEmail(in.Email),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.Roles().AssignRole(ctx, u.ID, domain.RoleUser)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return "", s.duplicateIdentity(ctx, u)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", u.ID)

	if err := s.sendConfirmation(ctx, rc, u); err != nil {
		return "", err
	}
	return MsgRegistrationSuccessful, nil
}

// duplicateIdentity explains a create that lost a uniqueness race, or a
// username clash between two addresses with the same local part.
func (s *AccountService) duplicateIdentity(ctx context.Context, u domain.User) error {
	if _, err := s.Store.Users().GetUserByEmail(ctx, u.Email); err == nil {
		return &ValidationError{Message: MsgEmailAlreadyExists}
	}
	return validationf("Registration failed: Username '%s' is already taken.", u.Username)
}

func (s *AccountService) sendConfirmation(ctx context.Context, rc RequestContext, u domain.User) error {
	token, err := s.Tokens.IssueFor(u, domain.PurposeEmailConfirmation)
	if err != nil {
		return fmt.Errorf("failed to issue confirmation token: %w", err)
	}
	link := fmt.Sprintf("%s/auth/confirm-email?userId=%s&token=%s",
		strings.TrimSuffix(rc.BaseURL, "/"), url.QueryEscape(u.ID), url.QueryEscape(token))
	s.Notifier.NotifyEmailConfirmation(ctx, u.Email, link)
	return nil
}

// ConfirmEmail marks the email as owned. Confirming twice succeeds.
func (s *AccountService) ConfirmEmail(ctx context.Context, rc RequestContext, userID, token string) (string, error) {
	err := firstFailure(
		notEmpty("User Id", userID),
		notEmpty("Token", token),
	)
	if err != nil {
		return "", err
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", &ValidationError{Message: MsgInvalidUser}
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.Tokens.ValidateForUser(token, domain.PurposeEmailConfirmation, u); err != nil {
		return "", validationf("Email confirmation failed: %s", msgInvalidToken)
	}

	if !u.EmailConfirmed {
		u.EmailConfirmed = true
		if _, err := s.Store.Users().UpdateUser(ctx, u); err != nil {
			return "", mapStoreErr("failed to confirm email", err)
		}
		slogx.FromContext(ctx).Info("email confirmed", "user_id", u.ID)
	}
	return MsgEmailConfirmed, nil
}

// ResendEmailConfirmation sends a fresh link to an unconfirmed account. The
// reply is the same whether or not such an account exists.
func (s *AccountService) ResendEmailConfirmation(ctx context.Context, rc RequestContext, email string) (string, error) {
	err := firstFailure(
		notEmpty("Email", email),
		emailAddress("Email", email),
	)
	if err != nil {
		return "", err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.EmailConfirmed) {
		return MsgConfirmationSent, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}

	if err := s.sendConfirmation(ctx, rc, u); err != nil {
		return "", err
	}
	return MsgConfirmationSent, nil
}

// ============================================================================
// Passwords
// ============================================================================

// ForgotPassword mails a reset link to a confirmed account. The reply is the
// same whether or not such an account exists.
func (s *AccountService) ForgotPassword(ctx context.Context, rc RequestContext, email string) (string, error) {
	err := firstFailure(
		notEmpty("Email", email),
		emailAddress("Email", email),
	)
	if err != nil {
		return "", err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !u.EmailConfirmed) {
		return MsgResetLinkSent, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}

	token, err := s.Tokens.IssueFor(u, domain.PurposePasswordReset)
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}
	link := fmt.Sprintf("%s/auth/reset-password?email=%s&token=%s",
		strings.TrimSuffix(rc.BaseURL, "/"), escapeDataString(u.Email), url.QueryEscape(token))
	s.Notifier.NotifyPasswordReset(ctx, u.Email, link)

	return MsgResetLinkSent, nil
}

// ResetPassword replaces the password using a reset token. The new hash
// invalidates every reset token issued before it.
func (s *AccountService) ResetPassword(ctx context.Context, rc RequestContext, in ResetPasswordInput) (string, error) {
	err := firstFailure(
		notEmpty("Email", in.Email),
		emailAddress("Email", in.Email),
		notEmpty("Token", in.Token),
		notEmpty("Password", in.Password),
		minLength("Password", in.Password, 6),
		equalTo(in.ConfirmPassword, in.Password, MsgPasswordConfirmMismatch),
	)
	if err != nil {
		return "", err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		return "", &ValidationError{Message: MsgInvalidRequest}
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}

	if err := s.Tokens.ValidateForUser(in.Token, domain.PurposePasswordReset, u); err != nil {
		return "", validationf("Password reset failed: %s", msgInvalidToken)
	}
	if problems := s.Policy.Check(in.Password); len(problems) > 0 {
		return "", validationf("Password reset failed: %s", strings.Join(problems, ", "))
	}

	if err := s.setPassword(ctx, u, in.Password); err != nil {
		return "", err
	}
	slogx.FromContext(ctx).Info("password reset", "user_id", u.ID)
	return MsgPasswordReset, nil
}

// ChangePassword replaces the password of the signed-in user after checking
// the current one. Input is checked before the caller is resolved.
func (s *AccountService) ChangePassword(ctx context.Context, rc RequestContext, in ChangePasswordInput) (string, error) {
	err := firstFailure(
		notEmpty("Current Password", in.CurrentPassword),
		notEmpty("New Password", in.NewPassword),
		minLength("New Password", in.NewPassword, 6),
		equalTo(in.ConfirmNewPassword, in.NewPassword, MsgNewPasswordConfirmMismatch),
	)
	if err != nil {
		return "", err
	}

	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return "", err
	}

	if err := cryptox.VerifyPassword(in.CurrentPassword, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return "", validationf("Password change failed: %s", msgIncorrectPassword)
		}
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if problems := s.Policy.Check(in.NewPassword); len(problems) > 0 {
		return "", validationf("Password change failed: %s", strings.Join(problems, ", "))
	}

	if err := s.setPassword(ctx, u, in.NewPassword); err != nil {
		return "", err
	}
	slogx.FromContext(ctx).Info("password changed", "user_id", u.ID)
	return MsgPasswordChanged, nil
}

func (s *AccountService) setPassword(ctx context.Context, u domain.User, password string) error {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = hash
	if _, err := s.Store.Users().UpdateUser(ctx, u); err != nil {
		return mapStoreErr("failed to update password", err)
	}
	return nil
}

// ============================================================================
// Sign-in
// ============================================================================

// Login checks email and password. It returns a session, or a two-factor
// challenge when the account has two-factor enabled.
func (s *AccountService) Login(ctx context.Context, rc RequestContext, in LoginInput) (LoginResult, error) {
	err := firstFailure(
		notEmpty("Email", in.Email),
		emailAddress("Email", in.Email),
		notEmpty("Password", in.Password),
	)
	if err != nil {
		return LoginResult{}, err
	}

	res, err := s.SignIn.AttemptPassword(ctx, in.Email, in.Password, in.DeviceToken, in.RememberMe)
	if err != nil {
		return LoginResult{}, err
	}

	if res.State == StateTwoFactorPending {
		return LoginResult{
			Message:           MsgTwoFactorRequired,
			RequiresTwoFactor: true,
			TwoFactorToken:    res.PendingToken,
		}, nil
	}
	return s.establish(ctx, res, MsgLoginSuccessful)
}

// LoginTwoFactor finishes a challenged sign-in with a TOTP or recovery
// code.
func (s *AccountService) LoginTwoFactor(ctx context.Context, rc RequestContext, in LoginTwoFactorInput) (LoginResult, error) {
	if err := firstFailure(notEmpty("Code", in.Code)); err != nil {
		return LoginResult{}, err
	}

	res, err := s.SignIn.AttemptTwoFactor(ctx, rc.PendingToken, in.Code, in.RememberMe, in.RememberMachine)
	if err != nil {
		return LoginResult{}, err
	}

	msg := MsgLoginSuccessful
	if res.UsedRecoveryCode() {
		msg = MsgLoginWithRecoveryCode
	}
	return s.establish(ctx, res, msg)
}

func (s *AccountService) establish(ctx context.Context, res SignInResult, msg string) (LoginResult, error) {
	roles, err := s.Store.Roles().ListRoles(ctx, res.User.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to load roles: %w", err)
	}
	session, err := s.Tokens.IssueSession(res.User, roles, res.AMR, res.RememberMe)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to issue session: %w", err)
	}

	slogx.FromContext(ctx).Info("user signed in", "user_id", res.User.ID, "amr", res.AMR)
	return LoginResult{
		Message:     msg,
		Session:     &session,
		DeviceToken: res.DeviceToken,
	}, nil
}

// Logout drops any pending two-factor sign-in of the caller.
func (s *AccountService) Logout(ctx context.Context, rc RequestContext) string {
	s.SignIn.SignOut(ctx, rc.PendingToken)
	return MsgLogoutSuccessful
}

// ============================================================================
// Two-factor management
// ============================================================================

// EnableTwoFactor provisions an authenticator secret. Two-factor stays off
// until VerifyTwoFactor sees a code from it.
func (s *AccountService) EnableTwoFactor(ctx context.Context, rc RequestContext) (EnableTwoFactorResult, error) {
	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return EnableTwoFactorResult{}, err
	}
	if u.TwoFactorEnabled {
		return EnableTwoFactorResult{}, &ValidationError{Message: MsgTwoFactorAlreadyOn}
	}

	u, err = s.TOTP.ProvisionSecret(ctx, u)
	if err != nil {
		return EnableTwoFactorResult{}, err
	}
	secret := *u.TwoFactorSecret

	return EnableTwoFactorResult{
		SharedKey:        FormatForDisplay(secret),
		AuthenticatorURI: s.TOTP.BuildEnrollmentURI(u.Email, secret),
	}, nil
}

// VerifyTwoFactor turns two-factor on once the user proves the
// authenticator works.
func (s *AccountService) VerifyTwoFactor(ctx context.Context, rc RequestContext, code string) (TwoFactorStatus, error) {
	err := firstFailure(
		notEmpty("Code", code),
		sixDigitCode(code),
	)
	if err != nil {
		return TwoFactorStatus{}, err
	}

	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return TwoFactorStatus{}, err
	}

	if !s.TOTP.VerifyCode(u, code) {
		return TwoFactorStatus{}, &ValidationError{Message: MsgInvalidVerificationCode}
	}

	u.TwoFactorEnabled = true
	if _, err := s.Store.Users().UpdateUser(ctx, u); err != nil {
		return TwoFactorStatus{}, mapStoreErr("failed to enable two-factor", err)
	}
	slogx.FromContext(ctx).Info("two-factor enabled", "user_id", u.ID)
	return TwoFactorStatus{Message: MsgTwoFactorEnabled, IsEnabled: true}, nil
}

func (s *AccountService) DisableTwoFactor(ctx context.Context, rc RequestContext) (TwoFactorStatus, error) {
	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return TwoFactorStatus{}, err
	}
	if !u.TwoFactorEnabled {
		return TwoFactorStatus{}, &ValidationError{Message: MsgTwoFactorNotEnabled}
	}

	if _, err := s.TOTP.Disable(ctx, u); err != nil {
		return TwoFactorStatus{}, err
	}
	slogx.FromContext(ctx).Info("two-factor disabled", "user_id", u.ID)
	return TwoFactorStatus{Message: MsgTwoFactorDisabled, IsEnabled: false}, nil
}

// GenerateRecoveryCodes replaces every recovery code of the caller.
func (s *AccountService) GenerateRecoveryCodes(ctx context.Context, rc RequestContext) (RecoveryCodesResult, error) {
	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return RecoveryCodesResult{}, err
	}
	if !u.TwoFactorEnabled {
		return RecoveryCodesResult{}, &ValidationError{Message: MsgRecoveryNeedsTwoFactor}
	}

	codes, err := s.TOTP.GenerateRecoveryCodes(ctx, u.ID, s.RecoveryCodeCount)
	if err != nil {
		return RecoveryCodesResult{}, err
	}
	return RecoveryCodesResult{Codes: codes, Message: MsgRecoveryCodesGenerated}, nil
}

// ============================================================================
// Profile and seeding
// ============================================================================

// GetUserInfo returns the caller's account with roles loaded.
func (s *AccountService) GetUserInfo(ctx context.Context, rc RequestContext) (domain.User, error) {
	u, err := s.currentUser(ctx, rc)
	if err != nil {
		return domain.User{}, err
	}
	u.Roles, err = s.Store.Roles().ListRoles(ctx, u.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load roles: %w", err)
	}
	return u, nil
}

// SeedAdmin creates a confirmed Admin account when email is not registered
// yet. It reports whether an account was created. Without an email nothing
// is created, and an empty store is reported since nobody could administer it.
func (s *AccountService) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" {
		empty, err := s.Store.Users().IsEmpty(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to count users: %w", err)
		}
		if empty {
			slogx.FromContext(ctx).Warn("no accounts exist and no admin email is configured")
		}
		return false, nil
	}
	if !isEmailAddress(email) {
		return false, fmt.Errorf("admin email %q is not a valid address", email)
	}

	_, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	if problems := s.Policy.Check(password); len(problems) > 0 {
		return false, fmt.Errorf("admin password rejected: %s", strings.Join(problems, ", "))
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	u := domain.User{
		ID:             idx.New().String(),
		Username:       usernameFromEmail(email),
		Email:          email,
		EmailConfirmed: true,
		PasswordHash:   hash,
		FirstName:      "System",
		LastName:       "Administrator",
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.Roles().EnsureRole(ctx, domain.RoleAdmin); err != nil {
			return err
		}
		return tx.Roles().AssignRole(ctx, u.ID, domain.RoleAdmin)
	})
	if err != nil {
		return false, mapStoreErr("failed to create admin", err)
	}
	return true, nil
}

// currentUser loads the authenticated caller. A session issued before the
// password last changed no longer identifies anyone.
func (s *AccountService) currentUser(ctx context.Context, rc RequestContext) (domain.User, error) {
	if rc.UserID == "" {
		return domain.User{}, ErrUnauthorized
	}
	u, err := s.Store.Users().GetUserByID(ctx, rc.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(rc.SessionStamp), []byte(SessionStamp(u))) != 1 {
		slogx.FromContext(ctx).Info("stale session rejected", "user_id", u.ID)
		return domain.User{}, ErrUnauthorized
	}
	return u, nil
}
