package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/api/helpers"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/authz"
	"github.com/corvidsec/identity/internal/oauth"
)

// respondServiceError maps service sentinels onto HTTP statuses. Anything
// unmapped is an internal failure: log the detail, return a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	// Credential and token failures share one message each; the specific
	// cause never crosses the wire.
	case errors.Is(err, auth.ErrInvalidCredentials):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAuthenticationRequired):
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrInvalidTOTPCode):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid code")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid or expired reset token")

	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrPasswordPolicy),
		errors.Is(err, auth.ErrUnknownProvider),
		errors.Is(err, auth.ErrUnknownPermission),
		errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, auth.ErrServiceIDTaken),
		errors.Is(err, auth.ErrTOTPAlreadyEnabled),
		errors.Is(err, auth.ErrTOTPNotConfigured),
		errors.Is(err, oauth.ErrInvalidAssertion),
		errors.Is(err, abac.ErrInvalidEffect):
		helpers.RespondError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrPrincipalNotFound),
		errors.Is(err, auth.ErrTokenNotFound),
		errors.Is(err, authz.ErrRoleNotFound),
		errors.Is(err, authz.ErrPermissionNotFound),
		errors.Is(err, authz.ErrGroupNotFound),
		errors.Is(err, abac.ErrPolicyNotFound):
		helpers.RespondError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, authz.ErrRoleExists),
		errors.Is(err, authz.ErrPermissionExists),
		errors.Is(err, authz.ErrGroupExists),
		errors.Is(err, abac.ErrPolicyExists):
		helpers.RespondError(w, http.StatusConflict, err.Error())

	case errors.Is(err, auth.ErrVersionConflict),
		errors.Is(err, authz.ErrVersionConflict),
		errors.Is(err, abac.ErrVersionConflict):
		helpers.RespondError(w, http.StatusConflict, "resource was modified concurrently, retry with current version")

	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"method", r.Method,
			"error", err,
		)
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
