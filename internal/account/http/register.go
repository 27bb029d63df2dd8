package http

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/internal/account/service"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

// HandleRegister handles POST /auth/register
//
//	@Summary		Register an account
//	@Description	Creates an unconfirmed account with the User role and mails a confirmation link.
//	@Tags			Account
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Registration details"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed or email already registered"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/auth/register [post].
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.AccountService.Register(r.Context(), h.requestContext(r), service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}

// HandleConfirmEmail handles GET /auth/confirm-email
//
//	@Summary		Confirm an email address
//	@Description	Target of the link mailed on registration. Confirming twice succeeds.
//	@Tags			Account
//	@Produce		json
//	@Param			userId	query		string	true	"User ID"
//	@Param			token	query		string	true	"Confirmation token"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid user or token"
//	@Router			/auth/confirm-email [get].
func (h *AccountHandler) HandleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg, err := h.AccountService.ConfirmEmail(r.Context(), h.requestContext(r), q.Get("userId"), q.Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}

// HandleResendEmailConfirmation handles POST /auth/resend-email-confirmation
//
//	@Summary		Resend the confirmation email
//	@Description	Always answers with the same message so it cannot be used to discover accounts.
//	@Tags			Account
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.EmailRequest	true	"Email address"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Router			/auth/resend-email-confirmation [post].
func (h *AccountHandler) HandleResendEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.AccountService.ResendEmailConfirmation(r.Context(), h.requestContext(r), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, msg)
}

// HandleUserInfo handles GET /auth/user-info
//
//	@Summary		Current user
//	@Description	Returns the profile and roles of the signed-in user.
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/user-info [get].
func (h *AccountHandler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	u, err := h.AccountService.GetUserInfo(r.Context(), h.requestContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		EmailConfirmed:   u.EmailConfirmed,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Roles:            roles,
		LastLoginAt:      u.LastLoginAt,
	})
}
