// Package metrics exposes the service's Prometheus collectors. Everything is
// registered on the default registry at init; cardinality stays bounded by
// using chi route patterns, never raw paths, as the route label.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity"

var (
	// HTTPDuration observes request latency per route pattern and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route pattern, and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// AuthAttempts counts credential authentications by outcome
	// (success, failure, totp_required).
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Credential authentication attempts by outcome.",
	}, []string{"outcome"})

	// TokensIssued counts issued tokens by type (pair, refresh, service).
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Tokens issued by type.",
	}, []string{"type"})

	// TokenReuse counts refresh-token reuse detections. Every increment
	// corresponds to one revoked family.
	TokenReuse = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_token_reuse_total",
		Help:      "Refresh token reuse detections.",
	})

	// ResetRequests counts password-reset requests accepted for processing.
	ResetRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_reset_requests_total",
		Help:      "Password reset requests received.",
	})

	// PolicyDecisions counts ABAC evaluations by outcome
	// (allow, deny, no_match).
	PolicyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "abac_decisions_total",
		Help:      "ABAC evaluation outcomes.",
	}, []string{"outcome"})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
