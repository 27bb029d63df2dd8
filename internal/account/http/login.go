package http

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/account/service"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

// HandleLogin handles POST /auth/login
//
//	@Summary		Sign in with email and password
//	@Description	Returns a session, or a two-factor challenge whose token must be sent to /auth/login-2fa in the X-Two-Factor-Token header.
//	@Description	Five consecutive failures lock the account for five minutes.
//	@Tags			Sign-in
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed, email not confirmed or account locked"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Wrong email or password"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.AccountService.Login(r.Context(), h.requestContext(r), service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleLoginTwoFactor handles POST /auth/login-2fa
//
//	@Summary		Complete a two-factor sign-in
//	@Description	Accepts a TOTP code or an unused recovery code for the challenge named by X-Two-Factor-Token.
//	@Tags			Sign-in
//	@Accept			json
//	@Produce		json
//	@Param			X-Two-Factor-Token	header		string							true	"Challenge token from /auth/login"
//	@Param			request				body		authsdk.LoginTwoFactorRequest	true	"Code"
//	@Success		200					{object}	authsdk.LoginResponse
//	@Failure		400					{object}	authsdk.ErrorResponse	"Invalid code, unknown challenge or account locked"
//	@Router			/auth/login-2fa [post].
func (h *AccountHandler) HandleLoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginTwoFactorRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.AccountService.LoginTwoFactor(r.Context(), h.requestContext(r), service.LoginTwoFactorInput{
		Code:            req.Code,
		RememberMe:      req.RememberMe,
		RememberMachine: req.RememberMachine,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleLogout handles POST /auth/logout
//
//	@Summary		Sign out
//	@Description	Drops the pending two-factor challenge named by X-Two-Factor-Token, if any.
//	@Tags			Sign-in
//	@Produce		json
//	@Param			X-Two-Factor-Token	header		string	false	"Challenge token from /auth/login"
//	@Success		200					{object}	authsdk.MessageResponse
//	@Router			/auth/logout [post].
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, h.AccountService.Logout(r.Context(), h.requestContext(r)))
}

func loginResponse(res service.LoginResult) authsdk.LoginResponse {
	out := authsdk.LoginResponse{
		Message:           res.Message,
		RequiresTwoFactor: res.RequiresTwoFactor,
		TwoFactorToken:    res.TwoFactorToken,
		DeviceToken:       res.DeviceToken,
	}
	if res.Session != nil {
		out.AccessToken = res.Session.AccessToken
		out.TokenType = "Bearer"
		out.ExpiresIn = int(res.Session.ExpiresIn.Seconds())
	}
	return out
}
