package domain

// Purpose scopes a signed token to the one flow that may consume it.
type Purpose string

const (
	PurposeEmailConfirmation Purpose = "EmailConfirmation"
	PurposePasswordReset     Purpose = "PasswordReset"
	PurposeTwoFactorRemember Purpose = "TwoFactorRemember"
)
