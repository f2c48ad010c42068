package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminAuth guards admin endpoints with a shared secret. Requests
// without a bearer token, or against a deployment with no secret
// configured, get 401; a wrong secret gets 403.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || secret == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Admin authentication required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Invalid admin secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
