package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultRecoveryCodeCount is how many codes a regeneration returns.
	DefaultRecoveryCodeCount = 10

	totpPeriod     = 30
	totpSecretSize = 20 // 160 bits
)

// TOTPEngine provisions authenticator secrets and checks codes against
// them. It also owns the recovery code set.
type TOTPEngine struct {
	Store  store.Store
	Issuer string

	// Skew is how many 30 second steps either side of now are accepted.
	Skew uint

	Now func() time.Time
}

func NewTOTPEngine(s store.Store, issuer string, skew uint) *TOTPEngine {
	return &TOTPEngine{Store: s, Issuer: issuer, Skew: skew, Now: time.Now}
}

func (e *TOTPEngine) newSecret(u domain.User) (string, error) {
	account := u.Email
	if account == "" {
		account = u.ID
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), nil
}

// ProvisionSecret makes sure u has a secret and returns the user as stored.
// An existing secret is kept, so repeated calls before enablement agree.
func (e *TOTPEngine) ProvisionSecret(ctx context.Context, u domain.User) (domain.User, error) {
	if u.HasSecret() {
		return u, nil
	}

	secret, err := e.newSecret(u)
	if err != nil {
		return domain.User{}, err
	}
	u.TwoFactorSecret = &secret
	if u.Version, err = e.Store.Users().UpdateUser(ctx, u); err != nil {
		return domain.User{}, mapStoreErr("failed to store TOTP secret", err)
	}
	return u, nil
}

// BuildEnrollmentURI returns the otpauth URI an authenticator app scans.
func (e *TOTPEngine) BuildEnrollmentURI(email, secret string) string {
	issuer := escapeDataString(e.Issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=6",
		issuer, escapeDataString(email), secret, issuer)
}

// escapeDataString percent-encodes everything outside the RFC 3986
// unreserved set, spaces included.
func escapeDataString(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// FormatForDisplay splits a secret into lower-case blocks of four for
// manual entry.
func FormatForDisplay(secret string) string {
	var b strings.Builder
	for i := 0; i < len(secret); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(secret[i:min(i+4, len(secret))])
	}
	return strings.ToLower(b.String())
}

// VerifyCode checks a six digit code against the user's secret within the
// configured skew. Spaces and dashes in the input are ignored.
func (e *TOTPEngine) VerifyCode(u domain.User, code string) bool {
	code = normalizeCode(code)
	if !isSixDigits(code) || !u.HasSecret() {
		return false
	}

	ok, err := totp.ValidateCustom(code, *u.TwoFactorSecret, e.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      e.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateRecoveryCodes replaces the user's recovery codes with count new
// ones and returns them. Only hashes are stored.
func (e *TOTPEngine) GenerateRecoveryCodes(ctx context.Context, userID string, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultRecoveryCodeCount
	}

	codes := make([]string, count)
	hashes := make([]string, count)
	for i := range count {
		code, err := cryptox.GenerateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		codes[i] = code
		hashes[i] = cryptox.FingerprintToken(cryptox.NormalizeRecoveryCode(code))
	}

	err := e.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.RecoveryCodes().ReplaceRecoveryCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store recovery codes: %w", err)
	}
	return codes, nil
}

// ConsumeRecoveryCode spends one recovery code. It reports false when the
// code is unknown or was already used.
func (e *TOTPEngine) ConsumeRecoveryCode(ctx context.Context, userID, code string) (bool, error) {
	normalized := cryptox.NormalizeRecoveryCode(code)
	if normalized == "" {
		return false, nil
	}
	ok, err := e.Store.RecoveryCodes().ConsumeRecoveryCode(ctx, userID, cryptox.FingerprintToken(normalized))
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", err)
	}
	return ok, nil
}

// Disable turns two-factor off, rotates the secret and drops the recovery
// codes in one transaction.
func (e *TOTPEngine) Disable(ctx context.Context, u domain.User) (domain.User, error) {
	secret, err := e.newSecret(u)
	if err != nil {
		return domain.User{}, err
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = &secret

	err = e.Store.WithTx(ctx, func(tx store.Tx) error {
		v, err := tx.Users().UpdateUser(ctx, u)
		if err != nil {
			return err
		}
		u.Version = v
		return tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, u.ID)
	})
	if err != nil {
		return domain.User{}, mapStoreErr("failed to disable two-factor", err)
	}
	return u, nil
}

// mapStoreErr translates store sentinels into service errors and wraps
// anything else with msg.
func mapStoreErr(msg string, err error) error {
	switch {
	case errors.Is(err, store.ErrConcurrencyConflict):
		return ErrConcurrencyConflict
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDuplicateIdentity
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
