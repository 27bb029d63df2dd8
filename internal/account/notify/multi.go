package notify

import (
	"context"

	"github.com/aussiebroadwan/accounts/internal/account/service"
)

// Multi fans every message out to each notifier in order.
type Multi []service.Notifier

func (m Multi) NotifyEmailConfirmation(ctx context.Context, email, link string) {
	for _, n := range m {
		n.NotifyEmailConfirmation(ctx, email, link)
	}
}

func (m Multi) NotifyPasswordReset(ctx context.Context, email, link string) {
	for _, n := range m {
		n.NotifyPasswordReset(ctx, email, link)
	}
}

func (m Multi) NotifyTwoFactorCode(ctx context.Context, email, code string) {
	for _, n := range m {
		n.NotifyTwoFactorCode(ctx, email, code)
	}
}
