// Package middleware provides HTTP middleware for the livesync control API.
package middleware

import (
	"net/http"
	"path"
	"strings"
)

// CORS returns middleware that handles CORS headers for the control API.
// Origins may be exact ("https://app.example"), host globs ("https://*.example")
// or "*" to allow any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			wildcard, explicit := matchOrigin(allowedOrigins, origin)
			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// Credentials only for explicitly listed origins; echoing a
				// wildcard match with credentials enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed through "*" or a glob, and
// whether it is listed exactly.
func matchOrigin(allowed []string, origin string) (wildcard, explicit bool) {
	if origin == "" {
		return false, false
	}
	for _, o := range allowed {
		switch {
		case o == "*":
			wildcard = true
		case strings.EqualFold(o, origin):
			explicit = true
		case strings.Contains(o, "*"):
			if ok, err := path.Match(strings.ToLower(o), strings.ToLower(origin)); err == nil && ok {
				wildcard = true
			}
		}
	}
	return wildcard, explicit
}
