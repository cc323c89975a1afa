package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/api/helpers"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/metrics"
)

// ServiceHandler serves the machine-to-machine credential surface.
type ServiceHandler struct {
	service *auth.Service
}

func NewServiceHandler(service *auth.Service) *ServiceHandler {
	return &ServiceHandler{service: service}
}

// ServiceTokenRequest is the body for POST /service/token, the
// client-credentials exchange. OnBehalfOf optionally names a user whose
// context the token should carry.
type ServiceTokenRequest struct {
	ServiceID    string `json:"service_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	OnBehalfOf   string `json:"on_behalf_of,omitempty"`
}

func (req *ServiceTokenRequest) Validate() error {
	if req.ServiceID == "" || req.ClientSecret == "" {
		return fmt.Errorf("service_id and client_secret required")
	}
	if req.Audience == "" {
		return fmt.Errorf("audience required")
	}
	return nil
}

// ServiceTokenResponse mirrors the OAuth2 client-credentials grant shape.
type ServiceTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *ServiceHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req ServiceTokenRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		token string
		err   error
	)
	if req.OnBehalfOf != "" {
		userID, parseErr := uuid.Parse(req.OnBehalfOf)
		if parseErr != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid on_behalf_of id")
			return
		}
		token, err = h.service.IssueServiceTokenOnBehalf(r.Context(), req.ServiceID, req.ClientSecret, req.Audience, userID)
	} else {
		token, err = h.service.IssueServiceToken(r.Context(), req.ServiceID, req.ClientSecret, req.Audience)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	metrics.TokensIssued.WithLabelValues("service").Inc()
	helpers.RespondJSON(w, http.StatusOK, ServiceTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.service.ServiceTokenTTL().Seconds()),
	})
}

// RegisterServiceRequest is the body for POST /admin/services.
type RegisterServiceRequest struct {
	ServiceID   string   `json:"service_id"`
	Permissions []string `json:"permissions,omitempty"`
}

// RegisterService provisions a service principal. The response carries the
// cleartext client secret exactly once; it cannot be retrieved again.
func (h *ServiceHandler) RegisterService(w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	registration, err := h.service.RegisterService(r.Context(), req.ServiceID, req.Permissions)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, registration)
}
