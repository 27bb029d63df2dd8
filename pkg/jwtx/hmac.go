package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeySize is the smallest HMAC key accepted, 256 bits for HS256.
const MinKeySize = 32

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
	ErrKeyTooShort  = errors.New("jwtx: hmac key too short")
)

// Verifier checks a session token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(token string) (Claims, error)

func (f VerifierFunc) Verify(token string) (Claims, error) { return f(token) }

// HMAC signs and verifies HS256 tokens with a single symmetric key. Tokens
// never leave the service that minted them, so there is no published key
// set to rotate.
type HMAC struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures an HMAC.
type Option func(*HMAC)

// WithLeeway allows clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(h *HMAC) { h.leeway = d }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(h *HMAC) { h.now = now }
}

// NewHMAC returns an HS256 signer/verifier bound to issuer.
func NewHMAC(key []byte, issuer string, opts ...Option) (*HMAC, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooShort, len(key))
	}

	h := &HMAC{
		key:    append([]byte(nil), key...),
		issuer: issuer,
		now:    time.Now,
		// Time based claims are checked by hand so the clock can be injected.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Issuer returns the issuer stamped into and required of every token.
func (h *HMAC) Issuer() string { return h.issuer }

// Sign serialises claims as a compact HS256 JWT.
func (h *HMAC) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
}

// Verify checks a session token.
func (h *HMAC) Verify(token string) (Claims, error) {
	var c Claims
	if err := h.parse(token, &c); err != nil {
		return Claims{}, err
	}
	if err := h.validate(&c.RegisteredClaims, SessionAudience); err != nil {
		return Claims{}, err
	}
	return c, nil
}

// VerifyPurpose checks a purpose token minted for purpose.
func (h *HMAC) VerifyPurpose(token, purpose string) (PurposeClaims, error) {
	var c PurposeClaims
	if err := h.parse(token, &c); err != nil {
		return PurposeClaims{}, err
	}
	if purpose == "" {
		return PurposeClaims{}, ErrAudience
	}
	if err := h.validate(&c.RegisteredClaims, purpose); err != nil {
		return PurposeClaims{}, err
	}
	return c, nil
}

func (h *HMAC) parse(token string, claims jwt.Claims) error {
	_, err := h.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return h.key, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (h *HMAC) validate(rc *jwt.RegisteredClaims, audience string) error {
	if rc.Subject == "" {
		return ErrInvalidClaim
	}
	if err := ValidateIssuer(rc, h.issuer); err != nil {
		return err
	}
	if err := ValidateAudience(rc, audience); err != nil {
		return err
	}
	return ValidateExpiry(rc, h.now().UTC(), h.leeway)
}
