package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/api/helpers"
	customMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/metrics"
)

// AuthHandler serves registration, login, and token lifecycle endpoints.
type AuthHandler struct {
	service *auth.Service
}

func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// UserResponse is the public view of a user. Hashes and reset state never
// leave the service.
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func newUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		TOTPEnabled: u.TOTPEnabled,
		CreatedAt:   u.CreatedAt,
	}
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

func (req *RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("invalid email format")
	}
	if req.Password == "" {
		return fmt.Errorf("password required")
	}
	if len(req.DisplayName) > 100 {
		return fmt.Errorf("display name too long (max 100 chars)")
	}
	return nil
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		slog.Warn("register: invalid request body", "error", err)
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var displayName *string
	if req.DisplayName != "" {
		displayName = &req.DisplayName
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password, displayName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, newUserResponse(user))
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *LoginRequest) Validate() error {
	if req.Email == "" || req.Password == "" {
		return fmt.Errorf("email and password required")
	}
	return nil
}

// LoginResponse covers both login outcomes: a token pair, or a TOTP challenge
// carrying the short-lived pre-auth token.
type LoginResponse struct {
	TOTPRequired bool   `json:"totp_required,omitempty"`
	PreAuthToken string `json:"pre_auth_token,omitempty"`
	*auth.TokenPair
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		slog.Warn("login: invalid request body", "ip", helpers.GetRealIP(r), "error", err)
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// One message regardless of cause; the service already audited the
		// specifics.
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if result.RequiresTOTP {
		metrics.AuthAttempts.WithLabelValues("totp_required").Inc()
		helpers.RespondJSON(w, http.StatusOK, LoginResponse{
			TOTPRequired: true,
			PreAuthToken: result.PreAuthToken,
		})
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	metrics.TokensIssued.WithLabelValues("pair").Inc()
	helpers.RespondJSON(w, http.StatusOK, LoginResponse{TokenPair: result.Tokens})
}

// VerifyTOTPRequest is the body for POST /auth/login/totp. The pre-auth token
// from the first login step rides in the Authorization header.
type VerifyTOTPRequest struct {
	Code string `json:"code"`
}

func (h *AuthHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyTOTPRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		helpers.RespondError(w, http.StatusBadRequest, "code required")
		return
	}

	preAuth, err := helpers.ExtractBearerToken(r)
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "missing pre-auth token")
		return
	}

	result, err := h.service.VerifyTOTP(r.Context(), preAuth, req.Code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		respondServiceError(w, r, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	metrics.TokensIssued.WithLabelValues("pair").Inc()
	helpers.RespondJSON(w, http.StatusOK, result.Tokens)
}

// OAuthLoginRequest is the body for POST /auth/oauth/{provider}.
type OAuthLoginRequest struct {
	Assertion string `json:"assertion"`
}

func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req OAuthLoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Assertion == "" {
		helpers.RespondError(w, http.StatusBadRequest, "assertion required")
		return
	}

	user, err := h.service.AuthenticateWithOAuth(r.Context(), provider, req.Assertion)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		respondServiceError(w, r, err)
		return
	}

	pair, err := h.service.IssueTokenPair(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	metrics.TokensIssued.WithLabelValues("pair").Inc()
	helpers.RespondJSON(w, http.StatusOK, pair)
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	pair, err := h.service.RefreshTokenPair(r.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	metrics.TokensIssued.WithLabelValues("pair").Inc()
	helpers.RespondJSON(w, http.StatusOK, pair)
}

// LogoutRequest is the body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RefreshToken != "" {
		if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
			respondServiceError(w, r, err)
			return
		}
	}

	helpers.RespondMessage(w, http.StatusOK, "logged out")
}

// LogoutAll revokes every live session of the calling user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.RevokeAllSessions(r.Context(), userID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	helpers.RespondMessage(w, http.StatusOK, "all sessions revoked")
}
