package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const localStorefront = "http://localhost:3000"

// CORS allows the storefront origins to call the API with the session
// header. A "*" entry opens the API to any origin without credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(corsOptions(origins)).Handler
}

func corsOptions(origins []string) cors.Options {
	allowed, wildcard := normalizeOrigins(origins)
	return cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", IdempotencyHeader, RequestIDHeader, SessionHeader},
		ExposedHeaders: []string{SessionHeader, RequestIDHeader, ReplayedHeader, "Retry-After"},
		// browsers reject credentials alongside a wildcard origin
		AllowCredentials: !wildcard,
		MaxAge:           600,
	}
}

func normalizeOrigins(origins []string) ([]string, bool) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}, true
		}
		key := strings.ToLower(o)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = append(out, localStorefront)
	}
	return out, false
}
