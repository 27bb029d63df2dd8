package authsdk

import "time"

// TwoFactorTokenHeader carries the pending sign-in token between the
// password step and the two-factor step of a login.
const TwoFactorTokenHeader = "X-Two-Factor-Token"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error" example:"validation_error"`
	ErrorDescription string `json:"error_description" example:"Password and confirmation password do not match."`
}

// MessageResponse is returned by use-cases whose only output is a message.
type MessageResponse struct {
	Message string `json:"message" example:"Password changed successfully."`
}

// ============================================================================
// Registration and email
// ============================================================================

type RegisterRequest struct {
	Email           string `json:"email" example:"alice@example.com"`
	Password        string `json:"password" example:"Passw0rd!"`
	ConfirmPassword string `json:"confirm_password" example:"Passw0rd!"`
	FirstName       string `json:"first_name,omitempty" example:"Alice"`
	LastName        string `json:"last_name,omitempty" example:"Smith"`
}

// EmailRequest is the body of forgot-password and resend-email-confirmation.
type EmailRequest struct {
	Email string `json:"email" example:"alice@example.com"`
}

// ============================================================================
// Passwords
// ============================================================================

type ResetPasswordRequest struct {
	Email           string `json:"email" example:"alice@example.com"`
	Token           string `json:"token"`
	Password        string `json:"password" example:"N3wPassw0rd!"`
	ConfirmPassword string `json:"confirm_password" example:"N3wPassw0rd!"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// ============================================================================
// Sign-in
// ============================================================================

type LoginRequest struct {
	Email      string `json:"email" example:"alice@example.com"`
	Password   string `json:"password" example:"Passw0rd!"`
	RememberMe bool   `json:"remember_me"`

	// DeviceToken is a remembered-device token from an earlier two-factor
	// sign-in. When valid it skips the two-factor step.
	DeviceToken string `json:"device_token,omitempty"`
}

// LoginResponse is returned by both sign-in steps. Either RequiresTwoFactor
// is set together with TwoFactorToken, or AccessToken holds a session.
type LoginResponse struct {
	Message           string `json:"message" example:"Login successful."`
	RequiresTwoFactor bool   `json:"requires_two_factor"`
	TwoFactorToken    string `json:"two_factor_token,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	TokenType         string `json:"token_type,omitempty" example:"Bearer"`
	ExpiresIn         int    `json:"expires_in,omitempty" example:"3600"`
	DeviceToken       string `json:"device_token,omitempty"`
}

type LoginTwoFactorRequest struct {
	Code            string `json:"code" example:"123456"`
	RememberMe      bool   `json:"remember_me"`
	RememberMachine bool   `json:"remember_machine"`
}

// ============================================================================
// Two-factor management
// ============================================================================

type EnableTwoFactorResponse struct {
	SharedKey        string `json:"shared_key" example:"jbsw y3dp ehpk 3pxp"`
	AuthenticatorURI string `json:"authenticator_uri" example:"otpauth://totp/accounts:alice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=accounts&digits=6"`
}

type VerifyTwoFactorRequest struct {
	Code string `json:"code" example:"123456"`
}

type TwoFactorStatusResponse struct {
	Message   string `json:"message" example:"Two-factor authentication has been enabled successfully."`
	IsEnabled bool   `json:"is_enabled"`
}

type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
	Message       string   `json:"message"`
}

// ============================================================================
// Profile
// ============================================================================

type UserInfoResponse struct {
	ID               string     `json:"id" example:"01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV"`
	Username         string     `json:"username" example:"alice"`
	Email            string     `json:"email" example:"alice@example.com"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	EmailConfirmed   bool       `json:"email_confirmed"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	Roles            []string   `json:"roles"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty" example:"1h23m45s"`
	Version string        `json:"version,omitempty" example:"v0.1.0"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database      string `json:"database" example:"ok"`
	PendingLogins string `json:"pending_logins" example:"ok"`
}
