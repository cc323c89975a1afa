package api

import (
	"log/slog"
	"net/http"

	"github.com/corvidsec/identity/internal/api/helpers"
)

// RequestPasswordResetRequest is the body for POST /auth/password-reset/request.
type RequestPasswordResetRequest struct {
	Email  string `json:"email"`
	Locale string `json:"locale,omitempty"`
}

// RequestPasswordReset starts the reset flow. The response is identical
// whether or not the address has an account, so the endpoint cannot be used
// to enumerate emails.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req RequestPasswordResetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		slog.Warn("password reset request: invalid body", "error", err)
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		helpers.RespondError(w, http.StatusBadRequest, "email required")
		return
	}

	// The service swallows every outcome, including rate limiting and
	// unknown addresses.
	_ = h.service.RequestPasswordReset(r.Context(), req.Email, req.Locale)

	helpers.RespondMessage(w, http.StatusOK, "if the email exists, a reset link has been sent")
}

// ValidateResetTokenRequest is the body for POST /auth/password-reset/validate.
type ValidateResetTokenRequest struct {
	Token string `json:"token"`
}

// ValidateResetToken lets a client pre-check a token before showing the new
// password form.
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateResetTokenRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.service.ValidateResetToken(r.Context(), req.Token); err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// ResetPasswordRequest is the body for POST /auth/password-reset/confirm.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword consumes a reset token and sets the new password. Every live
// session of the account is revoked as a side effect.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Token == "" {
		helpers.RespondError(w, http.StatusBadRequest, "token required")
		return
	}
	if req.NewPassword == "" {
		helpers.RespondError(w, http.StatusBadRequest, "new password required")
		return
	}

	if _, err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondMessage(w, http.StatusOK, "password reset successful")
}
