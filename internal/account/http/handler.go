package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/accounts/internal/account/service"
	"github.com/aussiebroadwan/accounts/pkg/authsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// AccountHandler serves the /auth endpoints. Each handler decodes its
// request, calls one AccountService use-case and renders the result.
type AccountHandler struct {
	AccountService *service.AccountService

	// BaseURL overrides the origin derived from the request.
	BaseURL string
}

func (h *AccountHandler) requestContext(r *http.Request) service.RequestContext {
	rc := service.RequestContext{
		UserID:       httpx.UserIDFromContext(r.Context()),
		PendingToken: strings.TrimSpace(r.Header.Get(authsdk.TwoFactorTokenHeader)),
		BaseURL:      h.baseURL(r),
	}
	if claims, ok := httpx.ClaimsFromContext(r.Context()); ok {
		rc.SessionStamp = claims.Stamp
	}
	return rc
}

func (h *AccountHandler) baseURL(r *http.Request) string {
	if h.BaseURL != "" {
		return strings.TrimSuffix(h.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// decode reads the JSON body into v and answers 400 when it cannot.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
		authsdk.NewInvalidRequestError(err.Error()).WriteError(w)
		return false
	}
	return true
}

// writeError renders a use-case error. Anything that is not one of the
// service error kinds is logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked  *service.AccountLockedError
		invalid *service.ValidationError
	)
	switch {
	case errors.As(err, &locked):
		authsdk.NewAccountLockedError(locked.Message).WriteError(w)
	case errors.Is(err, service.ErrAccountLocked):
		authsdk.NewAccountLockedError(service.MsgLoginLocked).WriteError(w)
	case errors.As(err, &invalid):
		authsdk.NewValidationError(invalid.Message).WriteError(w)
	case errors.Is(err, service.ErrUnauthorized):
		authsdk.ErrUnauthorized.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func writeMessage(w http.ResponseWriter, msg string) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: msg})
}
