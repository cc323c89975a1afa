package api

import (
	"log/slog"
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	customMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/metrics"
)

// PermissionAdmin gates the whole administrative surface: principals, service
// registration, the RBAC graph, and ABAC policies.
const PermissionAdmin = "identity:admin"

// Server owns the HTTP surface. Pool and Redis are only consulted by the
// readiness probe; everything else reaches storage through the services.
type Server struct {
	Router *chi.Mux
	Pool   *pgxpool.Pool
	Redis  *goredis.Client
	Logger *slog.Logger
}

// Options bundles everything the router needs. Auth, RBAC, Policies, and
// Engine are required; the rest defaults sensibly.
type Options struct {
	Auth     *auth.Service
	RBAC     RBACDeps
	Policies abac.PolicyStore
	Engine   *abac.Engine
	Audit    audit.Logger

	Pool  *pgxpool.Pool
	Redis *goredis.Client

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// NewServer assembles the middleware stack and the full route table.
func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// Sentry sits above recovery so captured panics carry the hub; Repanic
	// hands them back down for our own recovery handler.
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	if len(opts.CORSOrigins) > 0 {
		r.Use(customMiddleware.CORS(opts.CORSOrigins))
	}

	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}
	limiter := customMiddleware.NewIPRateLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst)
	r.Use(limiter.Middleware)

	requireAuth := customMiddleware.RequireAuth(opts.Auth)
	requireAdmin := customMiddleware.RequirePermission(PermissionAdmin)

	authHandler := NewAuthHandler(opts.Auth)
	serviceHandler := NewServiceHandler(opts.Auth)
	rbacHandler := NewRBACHandler(opts.RBAC)
	policyHandler := NewPolicyHandler(opts.Policies, opts.Engine, opts.Audit)

	server := &Server{
		Router: r,
		Pool:   opts.Pool,
		Redis:  opts.Redis,
		Logger: slog.Default(),
	}

	r.Get("/healthz", server.Healthz)
	r.Get("/readyz", server.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Credential endpoints get a tighter bucket on top of the global one;
		// they are the ones worth brute-forcing.
		authLimiter := customMiddleware.NewIPRateLimiter(rate.Limit(opts.RateLimitRPS/2), opts.RateLimitBurst/2)

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/login/totp", authHandler.VerifyTOTP)
			r.Post("/auth/oauth/{provider}", authHandler.OAuthLogin)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/password-reset/request", authHandler.RequestPasswordReset)
			r.Post("/auth/password-reset/validate", authHandler.ValidateResetToken)
			r.Post("/auth/password-reset/confirm", authHandler.ResetPassword)
			r.Post("/service/token", serviceHandler.IssueToken)
		})

		// Bearer-authenticated self-service.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RequireUser)

				r.Get("/me", authHandler.Me)
				r.Get("/me/permissions", authHandler.MyAccess)
				r.Post("/auth/logout", authHandler.Logout)
				r.Post("/auth/logout/all", authHandler.LogoutAll)
				r.Get("/sessions", authHandler.ListSessions)
				r.Delete("/sessions/{id}", authHandler.RevokeSession)
				r.Post("/me/totp/setup", authHandler.SetupTOTP)
				r.Post("/me/totp/activate", authHandler.ActivateTOTP)
				r.Post("/me/totp/disable", authHandler.DisableTOTP)
			})

			// Administrative surface, users and services alike, behind one
			// permission.
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/principals/{id}", authHandler.GetPrincipal)
				r.Patch("/principals/{id}", authHandler.SetPrincipalEnabled)

				r.Post("/services", serviceHandler.RegisterService)

				r.Get("/roles", rbacHandler.ListRoles)
				r.Post("/roles", rbacHandler.CreateRole)
				r.Get("/roles/{id}", rbacHandler.GetRole)
				r.Put("/roles/{id}", rbacHandler.UpdateRole)
				r.Delete("/roles/{id}", rbacHandler.DeleteRole)
				r.Get("/roles/{id}/permissions", rbacHandler.ListRolePermissions)
				r.Put("/roles/{id}/permissions/{permissionID}", rbacHandler.GrantPermission)
				r.Delete("/roles/{id}/permissions/{permissionID}", rbacHandler.RevokePermission)

				r.Get("/permissions", rbacHandler.ListPermissions)
				r.Post("/permissions", rbacHandler.CreatePermission)
				r.Delete("/permissions/{id}", rbacHandler.DeletePermission)

				r.Get("/groups", rbacHandler.ListGroups)
				r.Post("/groups", rbacHandler.CreateGroup)
				r.Delete("/groups/{id}", rbacHandler.DeleteGroup)
				r.Get("/groups/{id}/members", rbacHandler.ListGroupMembers)
				r.Put("/groups/{id}/members/{userID}", rbacHandler.AddGroupMember)
				r.Delete("/groups/{id}/members/{userID}", rbacHandler.RemoveGroupMember)
				r.Put("/groups/{id}/roles/{roleID}", rbacHandler.AssignGroupRole)
				r.Delete("/groups/{id}/roles/{roleID}", rbacHandler.RemoveGroupRole)

				r.Put("/users/{id}/roles/{roleID}", rbacHandler.AssignUserRole)
				r.Delete("/users/{id}/roles/{roleID}", rbacHandler.RemoveUserRole)
				r.Get("/users/{id}/access", rbacHandler.GetUserAccess)

				r.Get("/policies", policyHandler.ListPolicies)
				r.Post("/policies", policyHandler.CreatePolicy)
				r.Get("/policies/{id}", policyHandler.GetPolicy)
				r.Put("/policies/{id}", policyHandler.UpdatePolicy)
				r.Delete("/policies/{id}", policyHandler.DeletePolicy)

				r.Post("/authz/evaluate", policyHandler.Evaluate)
			})
		})
	})

	return server
}
