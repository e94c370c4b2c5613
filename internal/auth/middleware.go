// Package auth guards the admin surface. Admin routes share one static
// credential configured through ADMIN_TOKEN; callers present it in the
// X-Admin-Token header. The guard also resolves the client IP through
// proxy headers so rejected attempts can be audited.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"venue-rails/pkg/logging"
)

// TokenHeader carries the admin credential.
const TokenHeader = "X-Admin-Token"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ClientIPKey is the context key for the client IP address
const ClientIPKey contextKey = "client_ip"

// Guard rejects requests that do not present the configured admin token.
type Guard struct {
	token string
	log   *logging.ComponentLogger
}

// NewGuard creates a guard around the shared admin token. An empty token
// disables the admin surface entirely; every request is rejected until a
// token is configured.
func NewGuard(token string, log *logging.Logger) *Guard {
	return &Guard{
		token: strings.TrimSpace(token),
		log:   log.WithComponent("auth"),
	}
}

// Enabled reports whether an admin token is configured at all.
func (g *Guard) Enabled() bool { return g.token != "" }

// Handler wraps next with the token check. The resolved client IP lands in
// the request context for audit logging downstream.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		if !g.Enabled() {
			g.log.Warn("admin request rejected, no admin token configured",
				logging.String("ip", ip),
				logging.String("path", r.URL.Path))
			reject(w, "admin surface disabled")
			return
		}

		presented := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) != 1 {
			g.log.Warn("admin request rejected, invalid token",
				logging.String("ip", ip),
				logging.String("path", r.URL.Path))
			reject(w, "invalid admin token")
			return
		}

		ctx := context.WithValue(r.Context(), ClientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func reject(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// GetClientIPFromContext retrieves the client IP from the request context.
func GetClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok
}

// ClientIP extracts the real client IP from the request.
// Handles X-Forwarded-For and X-Real-IP headers for reverse proxy scenarios.
func ClientIP(req *http.Request) string {
	// Try X-Forwarded-For first (for reverse proxies)
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		if ip := strings.TrimSpace(parseFirstIP(xff)); ip != "" {
			return ip
		}
	}

	// Try X-Real-IP
	if xri := req.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr // Return as-is if split fails
	}

	return ip
}

// parseFirstIP extracts the first IP from a comma-separated list.
func parseFirstIP(xff string) string {
	for i := 0; i < len(xff); i++ {
		if xff[i] == ',' {
			return xff[:i]
		}
	}
	return xff
}
