package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corvidsec/identity/internal/api/helpers"
	"github.com/corvidsec/identity/internal/auth"
)

// TokenAuthority resolves bearer credentials to caller identities.
// *auth.Service satisfies it.
type TokenAuthority interface {
	AuthenticateToken(ctx context.Context, tokenString string) (*auth.Identity, error)
}

// RequireAuth validates the bearer token once per request and caches the
// resolved identity in the context. Downstream gates and handlers read the
// cached identity instead of re-validating.
func RequireAuth(authority TokenAuthority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := helpers.ExtractBearerToken(r)
			if err != nil {
				helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			identity, err := authority.AuthenticateToken(r.Context(), token)
			if err != nil {
				// One message for every failure mode; the cause stays
				// server-side.
				slog.Warn("bearer rejected", "ip", r.RemoteAddr, "path", r.URL.Path)
				helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequirePermission gates a route on one permission name. The check runs
// against the claims RequireAuth cached, so no store round-trip happens here;
// a revoked grant takes effect when the access token expires.
func RequirePermission(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := GetIdentity(r.Context())
			if err != nil {
				helpers.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !identity.HasPermission(name) {
				slog.Warn("permission denied",
					"need", name,
					"kind", identity.Kind,
					"path", r.URL.Path,
				)
				helpers.RespondError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects service principals. Routes that operate on the caller's
// own profile sit behind it.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := GetIdentity(r.Context())
		if err != nil || identity.Kind != auth.PrincipalKindUser {
			helpers.RespondError(w, http.StatusForbidden, "user credentials required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
