package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SDKClient calls the public account endpoints. Use NewSession with an
// access token for endpoints that need a signed-in user.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient returns a client for the service at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	var out MessageResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out)
}

func (c *SDKClient) ConfirmEmail(ctx context.Context, userID, token string) (*MessageResponse, error) {
	q := url.Values{"userId": {userID}, "token": {token}}
	var out MessageResponse
	return &out, c.do(ctx, http.MethodGet, "/auth/confirm-email?"+q.Encode(), nil, nil, &out)
}

func (c *SDKClient) ResendEmailConfirmation(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/resend-email-confirmation", nil, EmailRequest{Email: email}, &out)
}

func (c *SDKClient) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/forgot-password", nil, EmailRequest{Email: email}, &out)
}

func (c *SDKClient) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	var out MessageResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/reset-password", nil, req, &out)
}

// Login runs the password step. When the response has RequiresTwoFactor
// set, finish with LoginTwoFactor using the returned TwoFactorToken.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out)
}

func (c *SDKClient) LoginTwoFactor(ctx context.Context, twoFactorToken string, req LoginTwoFactorRequest) (*LoginResponse, error) {
	var out LoginResponse
	h := map[string]string{TwoFactorTokenHeader: twoFactorToken}
	return &out, c.do(ctx, http.MethodPost, "/auth/login-2fa", h, req, &out)
}

// Logout abandons a pending two-factor sign-in, if any.
func (c *SDKClient) Logout(ctx context.Context, twoFactorToken string) (*MessageResponse, error) {
	var h map[string]string
	if twoFactorToken != "" {
		h = map[string]string{TwoFactorTokenHeader: twoFactorToken}
	}
	var out MessageResponse
	return &out, c.do(ctx, http.MethodPost, "/auth/logout", h, nil, &out)
}

func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/livez", nil, nil, &out)
}

func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/readyz", nil, nil, &out)
}

// Session calls the endpoints that act on the signed-in user.
type Session struct {
	client      *SDKClient
	accessToken string
}

// NewSession binds accessToken, as returned by Login or LoginTwoFactor.
func (c *SDKClient) NewSession(accessToken string) *Session {
	return &Session{client: c, accessToken: accessToken}
}

func (s *Session) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.accessToken}
}

func (s *Session) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*MessageResponse, error) {
	var out MessageResponse
	return &out, s.client.do(ctx, http.MethodPost, "/auth/change-password", s.auth(), req, &out)
}

func (s *Session) EnableTwoFactor(ctx context.Context) (*EnableTwoFactorResponse, error) {
	var out EnableTwoFactorResponse
	return &out, s.client.do(ctx, http.MethodPost, "/auth/enable-2fa", s.auth(), nil, &out)
}

func (s *Session) VerifyTwoFactor(ctx context.Context, code string) (*TwoFactorStatusResponse, error) {
	var out TwoFactorStatusResponse
	return &out, s.client.do(ctx, http.MethodPost, "/auth/verify-2fa", s.auth(), VerifyTwoFactorRequest{Code: code}, &out)
}

func (s *Session) DisableTwoFactor(ctx context.Context) (*TwoFactorStatusResponse, error) {
	var out TwoFactorStatusResponse
	return &out, s.client.do(ctx, http.MethodPost, "/auth/disable-2fa", s.auth(), nil, &out)
}

func (s *Session) GenerateRecoveryCodes(ctx context.Context) (*RecoveryCodesResponse, error) {
	var out RecoveryCodesResponse
	return &out, s.client.do(ctx, http.MethodPost, "/auth/recovery-codes", s.auth(), nil, &out)
}

func (s *Session) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	var out UserInfoResponse
	return &out, s.client.do(ctx, http.MethodGet, "/auth/user-info", s.auth(), nil, &out)
}
