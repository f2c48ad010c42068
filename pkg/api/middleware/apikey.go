package middleware

import (
	"net/http"

	"github.com/marklog/marklog/pkg/capability"
)

// APIKeyAuth requires a bearer API key. Used on routes that derive the
// workspace from the key itself rather than from the path.
func APIKeyAuth(resolver *capability.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			cred, err := resolver.ResolveAPIKey(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, apiKeyCode(err), "Invalid API key")
				return
			}
			ctx := WithCredential(r.Context(), cred)
			ctx = WithWorkspaceID(ctx, cred.WorkspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
