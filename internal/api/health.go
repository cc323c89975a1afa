package api

import (
	"net/http"

	"github.com/corvidsec/identity/internal/api/helpers"
)

// Healthz is the liveness probe: the process is up and serving.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz is the readiness probe: the backing stores answer. Failures return
// a generic 503; the actual error goes to the log, not the client.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.Pool != nil {
		if err := s.Pool.Ping(ctx); err != nil {
			s.Logger.Error("readiness check failed", "error", err, "dependency", "postgres")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check failed", "error", err, "dependency", "redis")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
