package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// ValidateOrigins rejects unsafe CORS configurations at startup: wildcards
// and plain HTTP anywhere but localhost.
func ValidateOrigins(origins []string) error {
	for _, origin := range origins {
		if origin == "*" {
			return errors.New("wildcard CORS origin not allowed")
		}
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://localhost") {
			return errors.New("only HTTPS origins allowed (except http://localhost for development)")
		}
		if origin == "" || strings.Contains(origin, " ") {
			return errors.New("invalid origin format")
		}
	}
	return nil
}

// CORS enforces a fixed allow-list of origins. Unlisted origins on actual
// requests get no CORS headers and a 403; preflights for unlisted origins get
// no headers either, so the browser blocks them on its own.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Not a CORS request.
				next.ServeHTTP(w, r)
				return
			}

			ok := slices.Contains(allowed, origin)

			if r.Method == http.MethodOptions {
				if ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !ok {
				slog.Warn("cors origin rejected", "origin", origin, "path", r.URL.Path)
				http.Error(w, "CORS policy violation", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			next.ServeHTTP(w, r)
		})
	}
}
