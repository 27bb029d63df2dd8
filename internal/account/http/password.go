package http

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/account/service"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
)

// HandleForgotPassword handles POST /auth/forgot-password
//
//	@Summary		Request a password reset link
//	@Description	Mails a reset link to a confirmed account. Always answers with the same message.
//	@Tags			Password
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Email address"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/forgot-password [post].
func (h *AccountHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.AccountService.ForgotPassword(r.Context(), h.requestContext(r), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}

// HandleResetPassword handles POST /auth/reset-password
//
//	@Summary		Reset a password
//	@Description	Sets a new password using the token from a reset link. The token stops working once the password changes.
//	@Tags			Password
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ResetPasswordRequest	true	"Reset token and new password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed or invalid token"
//	@Router			/auth/reset-password [post].
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.AccountService.ResetPassword(r.Context(), h.requestContext(r), service.ResetPasswordInput{
		Email:           req.Email,
		Token:           req.Token,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}

// HandleChangePassword handles POST /auth/change-password
//
//	@Summary		Change password
//	@Tags			Password
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed or incorrect password"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/change-password [post].
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.AccountService.ChangePassword(r.Context(), h.requestContext(r), service.ChangePasswordInput{
		CurrentPassword:    req.CurrentPassword,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}
