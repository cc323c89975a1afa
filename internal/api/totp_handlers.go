package api

import (
	"log/slog"
	"net/http"

	"github.com/corvidsec/identity/internal/api/helpers"
	customMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/auth"
)

// currentUser loads the full profile of the authenticated caller.
func (h *AuthHandler) currentUser(r *http.Request) (*auth.User, error) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		return nil, auth.ErrAuthenticationRequired
	}
	return h.service.GetUser(r.Context(), userID)
}

// SetupTOTP generates a pending TOTP secret for the caller. The secret and
// otpauth URL appear in this response only; activation confirms the
// authenticator actually has them.
func (h *AuthHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	enrollment, err := h.service.SetupTOTP(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, enrollment)
}

// TOTPCodeRequest carries one TOTP code, used by activation and disable.
type TOTPCodeRequest struct {
	Code string `json:"code"`
}

// ActivateTOTP turns the pending secret on after the caller proves they can
// produce a valid code from it.
func (h *AuthHandler) ActivateTOTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req TOTPCodeRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ActivateTOTP(r.Context(), user, req.Code); err != nil {
		slog.Warn("totp activation failed", "user", user.ID)
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondMessage(w, http.StatusOK, "totp enabled")
}

// DisableTOTP turns the second factor off after one last valid code.
func (h *AuthHandler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req TOTPCodeRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.DisableTOTP(r.Context(), user, req.Code); err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondMessage(w, http.StatusOK, "totp disabled")
}
