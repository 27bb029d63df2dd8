package service

import "context"

// Notifier delivers account emails. Delivery is best effort: implementations
// log their own failures and never fail the use-case that triggered them.
type Notifier interface {
	NotifyEmailConfirmation(ctx context.Context, email, link string)
	NotifyPasswordReset(ctx context.Context, email, link string)
	NotifyTwoFactorCode(ctx context.Context, email, code string)
}
