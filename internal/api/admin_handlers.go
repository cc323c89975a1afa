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

// PrincipalResponse is the admin view of a principal record.
type PrincipalResponse struct {
	ID         uuid.UUID          `json:"id"`
	Kind       auth.PrincipalKind `json:"kind"`
	ExternalID string             `json:"external_id"`
	Enabled    bool               `json:"enabled"`
	Version    int                `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func newPrincipalResponse(p *auth.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:         p.ID,
		Kind:       p.Kind,
		ExternalID: p.ExternalID,
		Enabled:    p.Enabled,
		Version:    p.Version,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// GetPrincipal returns one principal by id.
func (h *AuthHandler) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid principal id")
		return
	}

	principal, err := h.service.GetPrincipal(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newPrincipalResponse(principal))
}

// SetPrincipalEnabledRequest is the body for PATCH /admin/principals/{id}.
type SetPrincipalEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetPrincipalEnabled flips a principal's kill switch. Disabling takes effect
// on the next authentication or token validation; a disabled admin cannot
// disable themselves into a lockout by accident.
func (h *AuthHandler) SetPrincipalEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid principal id")
		return
	}

	var req SetPrincipalEnabledRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Enabled == nil {
		helpers.RespondError(w, http.StatusBadRequest, "enabled required")
		return
	}

	// Self-disable is refused so one admin slip cannot lock everyone out.
	if !*req.Enabled {
		if identity, ctxErr := customMiddleware.GetIdentity(r.Context()); ctxErr == nil && identity.Kind == auth.PrincipalKindUser {
			target, findErr := h.service.GetPrincipal(r.Context(), id)
			if findErr == nil && target.Kind == auth.PrincipalKindUser && target.ExternalID == identity.UserID.String() {
				helpers.RespondError(w, http.StatusForbidden, "cannot disable your own principal")
				return
			}
		}
	}

	principal, err := h.service.SetPrincipalEnabled(r.Context(), id, *req.Enabled)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, newPrincipalResponse(principal))
}
