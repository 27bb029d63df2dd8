package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// SignInState is where a sign-in attempt stands.
type SignInState int

const (
	StateAnonymous SignInState = iota
	StatePasswordPending
	StateTwoFactorPending
	StateAuthenticated
	StateLockedOut
)

func (s SignInState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StatePasswordPending:
		return "password_pending"
	case StateTwoFactorPending:
		return "two_factor_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateLockedOut:
		return "locked_out"
	default:
		return fmt.Sprintf("SignInState(%d)", int(s))
	}
}

// LockoutPolicy locks an account for Duration after Threshold consecutive
// failed password or two-factor attempts.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 5 * time.Minute}

// DefaultPendingLoginTTL is how long a password-verified sign-in waits for
// its second factor.
const DefaultPendingLoginTTL = 5 * time.Minute

// AccountLockedError is returned while an account is locked out. It matches
// ErrAccountLocked with errors.Is.
type AccountLockedError struct {
	Message string
	Until   *time.Time
}

func (e *AccountLockedError) Error() string        { return e.Message }
func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// SignInResult is the outcome of a sign-in step that did not fail.
type SignInResult struct {
	State SignInState
	User  domain.User

	// PendingToken is set with StateTwoFactorPending. The client sends it
	// back with the code.
	PendingToken string

	// AMR lists the methods that authenticated the user.
	AMR []string

	RememberMe bool

	// DeviceToken is set when the caller asked to remember this device.
	DeviceToken string
}

// UsedRecoveryCode reports whether the second factor was a recovery code.
func (r SignInResult) UsedRecoveryCode() bool {
	return slices.Contains(r.AMR, jwtx.AMRRecovery)
}

// SignInService decides sign-in attempts. Password and two-factor failures
// share one lockout counter.
type SignInService struct {
	Store      store.Store
	Pending    store.PendingLogins
	Tokens     *TokenService
	TOTP       *TOTPEngine
	Lockout    LockoutPolicy
	PendingTTL time.Duration
	Now        func() time.Time
}

func NewSignInService(
	s store.Store,
	pending store.PendingLogins,
	tokens *TokenService,
	engine *TOTPEngine,
	lockout LockoutPolicy,
	pendingTTL time.Duration,
) *SignInService {
	if lockout.Threshold <= 0 {
		lockout.Threshold = DefaultLockoutPolicy.Threshold
	}
	if lockout.Duration <= 0 {
		lockout.Duration = DefaultLockoutPolicy.Duration
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingLoginTTL
	}
	if pending == nil {
		pending = s.PendingLogins()
	}
	return &SignInService{
		Store:      s,
		Pending:    pending,
		Tokens:     tokens,
		TOTP:       engine,
		Lockout:    lockout,
		PendingTTL: pendingTTL,
		Now:        time.Now,
	}
}

// AttemptPassword checks the primary credential. deviceToken is an optional
// remembered-device token that skips the second factor.
func (s *SignInService) AttemptPassword(
	ctx context.Context,
	email, password, deviceToken string,
	rememberMe bool,
) (SignInResult, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return SignInResult{State: StateAnonymous}, ErrUnauthorized
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.Now()
	if u.IsLockedOut(now) {
		return SignInResult{State: StateLockedOut}, &AccountLockedError{Message: MsgLoginLocked, Until: u.LockoutEnd}
	}
	if !u.EmailConfirmed {
		return SignInResult{State: StatePasswordPending}, &ValidationError{Message: MsgEmailNotConfirmed}
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return SignInResult{}, fmt.Errorf("failed to verify password: %w", err)
		}
		until, err := s.recordFailure(ctx, u.ID, now)
		if err != nil {
			return SignInResult{}, err
		}
		if until != nil {
			slogx.FromContext(ctx).Warn("account locked after failed passwords", "user_id", u.ID, "until", *until)
			return SignInResult{State: StateLockedOut}, &AccountLockedError{Message: MsgLoginLocked, Until: until}
		}
		return SignInResult{State: StatePasswordPending}, ErrUnauthorized
	}

	if !u.TwoFactorEnabled {
		return s.complete(ctx, u, []string{jwtx.AMRPassword}, rememberMe, now)
	}

	if deviceToken != "" && s.Tokens.ValidateForUser(deviceToken, domain.PurposeTwoFactorRemember, u) == nil {
		return s.complete(ctx, u, []string{jwtx.AMRPassword, jwtx.AMRDevice}, rememberMe, now)
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to generate pending token: %w", err)
	}
	err = s.Pending.CreatePendingLogin(ctx, domain.PendingLogin{
		ID:         cryptox.FingerprintToken(token),
		UserID:     u.ID,
		RememberMe: rememberMe,
		ExpiresAt:  now.Add(s.PendingTTL),
		CreatedAt:  now,
	})
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to store pending login: %w", err)
	}

	return SignInResult{
		State:        StateTwoFactorPending,
		User:         u,
		PendingToken: token,
		AMR:          []string{jwtx.AMRPassword},
		RememberMe:   rememberMe,
	}, nil
}

// AttemptTwoFactor finishes a sign-in started by AttemptPassword. The code
// is tried as a TOTP code first and then as a recovery code.
func (s *SignInService) AttemptTwoFactor(
	ctx context.Context,
	pendingToken, code string,
	rememberMe, rememberDevice bool,
) (SignInResult, error) {
	missing := &ValidationError{Message: MsgTwoFactorUserMissing}
	if pendingToken == "" {
		return SignInResult{State: StateAnonymous}, missing
	}

	pending, err := s.Pending.GetPendingLogin(ctx, cryptox.FingerprintToken(pendingToken))
	if errors.Is(err, store.ErrNotFound) {
		return SignInResult{State: StateAnonymous}, missing
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to load pending login: %w", err)
	}

	u, err := s.Store.Users().GetUserByID(ctx, pending.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return SignInResult{State: StateAnonymous}, missing
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.Now()
	if u.IsLockedOut(now) {
		return SignInResult{State: StateLockedOut}, &AccountLockedError{Message: MsgTwoFactorLocked, Until: u.LockoutEnd}
	}
	if !u.TwoFactorEnabled {
		return SignInResult{State: StateAnonymous}, missing
	}

	var amr []string
	switch {
	case s.TOTP.VerifyCode(u, code):
		amr = []string{jwtx.AMRPassword, jwtx.AMROTP}
	default:
		ok, err := s.TOTP.ConsumeRecoveryCode(ctx, u.ID, code)
		if err != nil {
			return SignInResult{}, err
		}
		if ok {
			amr = []string{jwtx.AMRPassword, jwtx.AMRRecovery}
			slogx.FromContext(ctx).Info("recovery code used", "user_id", u.ID)
		}
	}

	if amr == nil {
		until, err := s.recordFailure(ctx, u.ID, now)
		if err != nil {
			return SignInResult{}, err
		}
		if until != nil {
			slogx.FromContext(ctx).Warn("account locked after failed two-factor codes", "user_id", u.ID, "until", *until)
			return SignInResult{State: StateLockedOut}, &AccountLockedError{Message: MsgTwoFactorLocked, Until: until}
		}
		return SignInResult{State: StateTwoFactorPending}, &ValidationError{Message: MsgInvalidAuthCode}
	}

	// A pending login completes once, even when the same code races in twice.
	consumed, err := s.Pending.ConsumePendingLogin(ctx, pending.ID)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to consume pending login: %w", err)
	}
	if !consumed {
		return SignInResult{State: StateAnonymous}, missing
	}

	res, err := s.complete(ctx, u, amr, pending.RememberMe || rememberMe, now)
	if err != nil {
		return SignInResult{}, err
	}

	if rememberDevice {
		res.DeviceToken, err = s.Tokens.IssueFor(u, domain.PurposeTwoFactorRemember)
		if err != nil {
			return SignInResult{}, fmt.Errorf("failed to issue device token: %w", err)
		}
	}
	return res, nil
}

// SignOut forgets a pending two-factor sign-in. It always succeeds.
func (s *SignInService) SignOut(ctx context.Context, pendingToken string) {
	if pendingToken == "" {
		return
	}
	if err := s.Pending.DeletePendingLogin(ctx, cryptox.FingerprintToken(pendingToken)); err != nil {
		slogx.FromContext(ctx).Error("failed to delete pending login", "error", err)
	}
}

func (s *SignInService) complete(
	ctx context.Context,
	u domain.User,
	amr []string,
	rememberMe bool,
	now time.Time,
) (SignInResult, error) {
	if err := s.Store.Users().RecordSuccessfulSignIn(ctx, u.ID, now); err != nil {
		return SignInResult{}, fmt.Errorf("failed to record sign-in: %w", err)
	}
	at := now.UTC()
	u.LastLoginAt = &at
	u.FailedAccessCount = 0

	return SignInResult{
		State:      StateAuthenticated,
		User:       u,
		AMR:        amr,
		RememberMe: rememberMe,
	}, nil
}

// recordFailure counts a failed attempt and returns the lockout end when
// this attempt locked the account.
func (s *SignInService) recordFailure(ctx context.Context, userID string, now time.Time) (*time.Time, error) {
	until, err := s.Store.Users().RecordFailedAccess(ctx, userID, s.Lockout.Threshold, now.Add(s.Lockout.Duration))
	if err != nil {
		return nil, fmt.Errorf("failed to record failed access: %w", err)
	}
	return until, nil
}
