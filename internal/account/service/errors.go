package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the account use-cases. Lower layers return their
// own errors; use-cases translate them into one of these before returning.
var (
	// ErrUnauthorized means the caller is not signed in or the primary
	// credential was wrong. It never says which.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccountLocked means sign-in is blocked until the lockout ends.
	ErrAccountLocked = errors.New("account locked")

	// ErrTokenInvalid collapses bad signature, wrong purpose, expiry and a
	// stale stamp into one failure.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrDuplicateIdentity means the email or username is already taken.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrConcurrencyConflict means the user record changed while the
	// use-case was running. It is not retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ValidationError rejects user input or a business rule. Message is safe to
// show to the end user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}

// Messages shown to the end user.
const (
	MsgPasswordConfirmMismatch    = "Password and confirmation password do not match."
	MsgNewPasswordConfirmMismatch = "New password and confirmation password do not match."
	MsgEmailAlreadyExists         = "User with this email already exists."
	MsgRegistrationSuccessful     = "Registration successful. Please check your email to confirm your account."
	MsgInvalidUser                = "Invalid user."
	MsgEmailConfirmed             = "Email confirmed successfully. You can now log in."
	MsgConfirmationSent           = "If an unconfirmed account with that email exists, a confirmation email has been sent."
	MsgResetLinkSent              = "If an account with that email exists, a password reset link has been sent."
	MsgInvalidRequest             = "Invalid request."
	MsgPasswordReset              = "Password reset successful. You can now log in with your new password."
	MsgPasswordChanged            = "Password changed successfully."

	MsgEmailNotConfirmed       = "Email not confirmed. Please check your email and confirm your account."
	MsgLoginSuccessful         = "Login successful."
	MsgLoginWithRecoveryCode   = "Login successful using recovery code."
	MsgTwoFactorRequired       = "Two-factor authentication required. Use /auth/login-2fa endpoint."
	MsgLoginLocked             = "Account locked due to multiple failed login attempts. Please try again later."
	MsgTwoFactorLocked         = "Account locked due to multiple failed attempts."
	MsgTwoFactorUserMissing    = "Unable to load two-factor authentication user."
	MsgInvalidAuthCode         = "Invalid authentication code. Please try again."
	MsgLogoutSuccessful        = "Logout successful."
	MsgTwoFactorAlreadyOn      = "Two-factor authentication is already enabled."
	MsgCodeMustBeSixDigits     = "Code must be 6 digits"
	MsgInvalidVerificationCode = "Invalid verification code. Please try again."
	MsgTwoFactorEnabled        = "Two-factor authentication has been enabled successfully."
	MsgTwoFactorNotEnabled     = "Two-factor authentication is not enabled."
	MsgTwoFactorDisabled       = "Two-factor authentication has been disabled."
	MsgRecoveryNeedsTwoFactor  = "Two-factor authentication must be enabled to generate recovery codes."
	MsgRecoveryCodesGenerated  = "New recovery codes have been generated. Store them securely as they won't be shown again."

	msgInvalidToken      = "Invalid token."
	msgIncorrectPassword = "Incorrect password."
)
