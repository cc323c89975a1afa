package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/api/helpers"
	customMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/auth"
)

// SessionResponse is the public view of one live refresh-token record. The
// token hash stays server-side.
type SessionResponse struct {
	ID        uuid.UUID `json:"id"`
	FamilyID  uuid.UUID `json:"family_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newSessionResponses(records []*auth.RefreshToken) []SessionResponse {
	out := make([]SessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, SessionResponse{
			ID:        rec.ID,
			FamilyID:  rec.FamilyID,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return out
}

// ListSessions returns the caller's live sessions.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newSessionResponses(sessions))
}

// RevokeSession kills one of the caller's sessions by record id.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.service.RevokeSession(r.Context(), userID, sessionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"user": newUserResponse(user),
	})
}

// MyAccess returns the caller's effective roles and permissions, resolved
// fresh rather than read from the token, so it reflects grants made after
// the token was issued.
func (h *AuthHandler) MyAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roles, permissions := h.service.Resolver().Resolve(r.Context(), userID)

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"roles":       roles,
		"permissions": permissions,
	})
}
