package http

import (
	"net/http"

	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

// HandleEnableTwoFactor handles POST /auth/enable-2fa
//
//	@Summary		Start two-factor enrollment
//	@Description	Provisions an authenticator secret. Two-factor stays off until /auth/verify-2fa succeeds.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.EnableTwoFactorResponse	"Shared key and otpauth URI"
//	@Failure		400	{object}	authsdk.ErrorResponse			"Two-factor already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Invalid or missing access token"
//	@Router			/auth/enable-2fa [post].
func (h *AccountHandler) HandleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	res, err := h.AccountService.EnableTwoFactor(r.Context(), h.requestContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.EnableTwoFactorResponse{
		SharedKey:        res.SharedKey,
		AuthenticatorURI: res.AuthenticatorURI,
	})
}

// HandleVerifyTwoFactor handles POST /auth/verify-2fa
//
//	@Summary		Finish two-factor enrollment
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyTwoFactorRequest	true	"Six digit code from the authenticator"
//	@Success		200		{object}	authsdk.TwoFactorStatusResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/verify-2fa [post].
func (h *AccountHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyTwoFactorRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.AccountService.VerifyTwoFactor(r.Context(), h.requestContext(r), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{Message: res.Message, IsEnabled: res.IsEnabled})
}

// HandleDisableTwoFactor handles POST /auth/disable-2fa
//
//	@Summary		Turn two-factor off
//	@Description	Rotates the authenticator secret and deletes every recovery code.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorStatusResponse
//	@Failure		400	{object}	authsdk.ErrorResponse	"Two-factor not enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/auth/disable-2fa [post].
func (h *AccountHandler) HandleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	res, err := h.AccountService.DisableTwoFactor(r.Context(), h.requestContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{Message: res.Message, IsEnabled: res.IsEnabled})
}

// HandleRecoveryCodes handles POST /auth/recovery-codes
//
//	@Summary		Generate recovery codes
//	@Description	Replaces every recovery code of the user. The codes are shown once.
//	@Tags			Two-factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RecoveryCodesResponse	"New recovery codes (shown once)"
//	@Failure		400	{object}	authsdk.ErrorResponse			"Two-factor not enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Invalid or missing access token"
//	@Router			/auth/recovery-codes [post].
func (h *AccountHandler) HandleRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	res, err := h.AccountService.GenerateRecoveryCodes(r.Context(), h.requestContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodesResponse{RecoveryCodes: res.Codes, Message: res.Message})
}
