// Package notify delivers the messages the account flows send to users:
// confirmation links, reset links and two-factor codes.
package notify

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// LogNotifier writes every message to the log instead of sending it. It is
// the development transport and the fallback when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier logs through logger, or through the request logger when
// logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) logger(ctx context.Context) *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slogx.FromContext(ctx)
}

func (n *LogNotifier) NotifyEmailConfirmation(ctx context.Context, email, link string) {
	n.logger(ctx).Info("email confirmation link", "email", email, "link", link)
}

func (n *LogNotifier) NotifyPasswordReset(ctx context.Context, email, link string) {
	n.logger(ctx).Info("password reset link", "email", email, "link", link)
}

func (n *LogNotifier) NotifyTwoFactorCode(ctx context.Context, email, code string) {
	n.logger(ctx).Info("two-factor code", "email", email, "code", code)
}
