package helpers

import (
	"net"
	"net/http"
	"strings"
)

// GetRealIP extracts the client IP for logging and rate-limit keys. It trusts
// proxy headers in the usual order; the deployment's edge proxy is expected to
// strip client-supplied copies.
func GetRealIP(r *http.Request) net.IP {
	// X-Forwarded-For lists client, proxy1, proxy2; the first parseable entry
	// wins.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		if ip := net.ParseIP(strings.TrimSpace(realIP)); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}

	// RemoteAddr without a port, e.g. in tests.
	return net.ParseIP(r.RemoteAddr)
}
