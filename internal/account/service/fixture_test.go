package service

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/internal/account/store/drivers/sqlite"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testPassword = "Passw0rd!"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "account-service")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	Email string
	Value string
}

type recordingNotifier struct {
	mu            sync.Mutex
	confirmations []sentMail
	resets        []sentMail
	codes         []sentMail
}

func (n *recordingNotifier) NotifyEmailConfirmation(_ context.Context, email, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, sentMail{email, link})
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, email, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentMail{email, link})
}

func (n *recordingNotifier) NotifyTwoFactorCode(_ context.Context, email, code string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, sentMail{email, code})
}

func (n *recordingNotifier) lastConfirmation(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.confirmations, "no confirmation sent")
	return n.confirmations[len(n.confirmations)-1]
}

func (n *recordingNotifier) lastReset(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets, "no reset sent")
	return n.resets[len(n.resets)-1]
}

type fixture struct {
	store    *sqlite.Store
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *TokenService
	totp     *TOTPEngine
	signIn   *SignInService
	accounts *AccountService
	rc       RequestContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	clock := &fakeClock{now: time.Now().UTC()}
	signer, err := jwtx.NewHMAC(bytes.Repeat([]byte("k"), jwtx.MinKeySize), "accounts-test", jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	tokens := NewTokenService(signer, TokenTTLs{})
	tokens.Now = clock.Now
	engine := NewTOTPEngine(s, "Accounts", 1)
	engine.Now = clock.Now
	signIn := NewSignInService(s, nil, tokens, engine, LockoutPolicy{}, 0)
	signIn.Now = clock.Now

	notifier := &recordingNotifier{}
	return &fixture{
		store:    s,
		clock:    clock,
		notifier: notifier,
		tokens:   tokens,
		totp:     engine,
		signIn:   signIn,
		accounts: NewAccountService(s, signIn, notifier, DefaultPasswordPolicy),
		rc:       RequestContext{BaseURL: "https://accounts.example.com"},
	}
}

// linkParams pulls the query parameters out of a mailed link.
func linkParams(t *testing.T, link string) url.Values {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query()
}

func (f *fixture) register(t *testing.T, email string) domain.User {
	t.Helper()
	ctx := context.Background()

	msg, err := f.accounts.Register(ctx, f.rc, RegisterInput{
		Email: email, Password: testPassword, ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, MsgRegistrationSuccessful, msg)

	u, err := f.store.Users().GetUserByEmail(ctx, email)
	require.NoError(t, err)
	return u
}

func (f *fixture) registerConfirmed(t *testing.T, email string) domain.User {
	t.Helper()
	u := f.register(t, email)

	q := linkParams(t, f.notifier.lastConfirmation(t).Value)
	_, err := f.accounts.ConfirmEmail(context.Background(), f.rc, q.Get("userId"), q.Get("token"))
	require.NoError(t, err)

	return f.reload(t, u.ID)
}

func (f *fixture) reload(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// signedIn returns a request context authenticated as u, as a session
// issued now would carry.
func (f *fixture) signedIn(u domain.User) RequestContext {
	rc := f.rc
	rc.UserID = u.ID
	rc.SessionStamp = SessionStamp(u)
	return rc
}

// enableTwoFactor runs the enable and verify flows for u.
func (f *fixture) enableTwoFactor(t *testing.T, u domain.User) domain.User {
	t.Helper()
	ctx := context.Background()
	rc := f.signedIn(u)

	_, err := f.accounts.EnableTwoFactor(ctx, rc)
	require.NoError(t, err)

	u = f.reload(t, u.ID)
	status, err := f.accounts.VerifyTwoFactor(ctx, rc, f.code(t, u, 0))
	require.NoError(t, err)
	require.True(t, status.IsEnabled)

	return f.reload(t, u.ID)
}

// code returns the TOTP code of u at the fake clock shifted by steps.
func (f *fixture) code(t *testing.T, u domain.User, steps int) string {
	t.Helper()
	require.NotNil(t, u.TwoFactorSecret)
	at := f.clock.Now().Add(time.Duration(steps) * 30 * time.Second)
	code, err := totp.GenerateCodeCustom(*u.TwoFactorSecret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
