package service

import (
	"crypto/subtle"
	"time"

	"github.com/aussiebroadwan/accounts/internal/account/domain"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
)

// TokenTTLs bounds every token the service mints.
type TokenTTLs struct {
	EmailConfirmation time.Duration
	PasswordReset     time.Duration
	TwoFactorRemember time.Duration
	Session           time.Duration
	RememberedSession time.Duration
}

// DefaultTokenTTLs are used for any zero field of the configured TTLs.
var DefaultTokenTTLs = TokenTTLs{
	EmailConfirmation: 24 * time.Hour,
	PasswordReset:     2 * time.Hour,
	TwoFactorRemember: 14 * 24 * time.Hour,
	Session:           jwtx.DefaultSessionTTL,
	RememberedSession: jwtx.DefaultRememberedSessionTTL,
}

// TokenService issues and checks the signed tokens of the account flows.
// Nothing is stored server side: a purpose token is valid while its
// signature, purpose, expiry and stamp all hold.
type TokenService struct {
	Signer *jwtx.HMAC
	TTLs   TokenTTLs
	Now    func() time.Time
}

func NewTokenService(signer *jwtx.HMAC, ttls TokenTTLs) *TokenService {
	def := DefaultTokenTTLs
	if ttls.EmailConfirmation <= 0 {
		ttls.EmailConfirmation = def.EmailConfirmation
	}
	if ttls.PasswordReset <= 0 {
		ttls.PasswordReset = def.PasswordReset
	}
	if ttls.TwoFactorRemember <= 0 {
		ttls.TwoFactorRemember = def.TwoFactorRemember
	}
	if ttls.Session <= 0 {
		ttls.Session = def.Session
	}
	if ttls.RememberedSession <= 0 {
		ttls.RememberedSession = def.RememberedSession
	}
	return &TokenService{Signer: signer, TTLs: ttls, Now: time.Now}
}

func (s *TokenService) ttl(purpose domain.Purpose) time.Duration {
	switch purpose {
	case domain.PurposePasswordReset:
		return s.TTLs.PasswordReset
	case domain.PurposeTwoFactorRemember:
		return s.TTLs.TwoFactorRemember
	default:
		return s.TTLs.EmailConfirmation
	}
}

// Issue mints a token for userID restricted to purpose. stamp may be empty.
func (s *TokenService) Issue(userID string, purpose domain.Purpose, stamp string) (string, error) {
	claims := jwtx.NewPurposeClaims(userID, string(purpose), stamp, s.Signer.Issuer(), s.ttl(purpose), s.Now())
	return s.Signer.Sign(claims)
}

// IssueFor mints a purpose token bound to the current state of u.
func (s *TokenService) IssueFor(u domain.User, purpose domain.Purpose) (string, error) {
	return s.Issue(u.ID, purpose, StampFor(u, purpose))
}

// Validate checks signature, purpose and expiry. Every failure is
// ErrTokenInvalid.
func (s *TokenService) Validate(token string, purpose domain.Purpose) (jwtx.PurposeClaims, error) {
	claims, err := s.Signer.VerifyPurpose(token, string(purpose))
	if err != nil {
		return jwtx.PurposeClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateForUser additionally requires the token to belong to u and its
// stamp to match u as it is now.
func (s *TokenService) ValidateForUser(token string, purpose domain.Purpose, u domain.User) error {
	claims, err := s.Validate(token, purpose)
	if err != nil {
		return err
	}
	if claims.Subject != u.ID {
		return ErrTokenInvalid
	}
	if purpose == domain.PurposeTwoFactorRemember && (!u.TwoFactorEnabled || !u.HasSecret()) {
		return ErrTokenInvalid
	}
	want := StampFor(u, purpose)
	if subtle.ConstantTimeCompare([]byte(claims.Stamp), []byte(want)) != 1 {
		return ErrTokenInvalid
	}
	return nil
}

// StampFor is the account state a purpose token is bound to. A password
// reset dies with the hash it was issued against; a remembered device dies
// with the TOTP secret.
func StampFor(u domain.User, purpose domain.Purpose) string {
	switch purpose {
	case domain.PurposePasswordReset:
		return cryptox.FingerprintToken(u.PasswordHash)
	case domain.PurposeTwoFactorRemember:
		if u.TwoFactorSecret == nil {
			return ""
		}
		return cryptox.FingerprintToken(*u.TwoFactorSecret)
	default:
		return ""
	}
}

// SessionStamp is the account state a session is bound to. Changing or
// resetting the password ends every session issued before.
func SessionStamp(u domain.User) string {
	return cryptox.FingerprintToken("session:" + u.PasswordHash)
}

// Session is an issued access token.
type Session struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// IssueSession mints the access token returned by a completed sign-in.
func (s *TokenService) IssueSession(u domain.User, roles, amr []string, rememberMe bool) (Session, error) {
	ttl := s.TTLs.Session
	if rememberMe {
		ttl = s.TTLs.RememberedSession
	}
	claims := jwtx.NewSessionClaims(u.ID, jwtx.NewJTI(), amr, roles, u.Username, u.Email, s.Signer.Issuer(), ttl, s.Now())
	claims.Stamp = SessionStamp(u)
	tok, err := s.Signer.Sign(claims)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: tok, ExpiresIn: ttl}, nil
}

// VerifySession checks an access token minted by IssueSession.
func (s *TokenService) VerifySession(token string) (jwtx.Claims, error) {
	claims, err := s.Signer.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
