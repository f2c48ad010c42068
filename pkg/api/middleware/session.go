package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// SessionLoader attaches validated session claims to the context when the
// request carries a session cookie. It never rejects: endpoints that
// require a session enforce presence themselves.
func SessionLoader(sessions *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := sessions.FromRequest(r); err == nil {
				r = r.WithContext(WithSession(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests without a valid session cookie.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetSession(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WorkspaceAuth authorizes /workspaces/{ws} requests via either the
// session cookie (owner) or an API key bound to the workspace.
//
// Session callers that do not own the workspace get 404, never 403: the
// endpoint does not confirm that a foreign workspace exists. API-key
// credential failures get 401 with the resolver's code; scope checks
// happen per-handler and yield 403 FORBIDDEN.
func WorkspaceAuth(st store.Store, resolver *capability.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws := chi.URLParam(r, "ws")

			if claims := GetSession(r.Context()); claims != nil {
				owner, err := st.GetWorkspaceOwner(r.Context(), ws)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Internal server error")
					return
				}
				if owner == "" || owner != claims.UserID {
					writeError(w, http.StatusNotFound, "NOT_FOUND", "Workspace not found")
					return
				}
				cred := &capability.Credential{
					Kind:        capability.KindSession,
					WorkspaceID: ws,
					UserID:      claims.UserID,
				}
				ctx := WithCredential(r.Context(), cred)
				ctx = WithWorkspaceID(ctx, ws)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if token, ok := bearerToken(r); ok {
				cred, err := resolver.ResolveAPIKey(r.Context(), token)
				if err != nil {
					writeError(w, http.StatusUnauthorized, apiKeyCode(err), "Invalid API key")
					return
				}
				if cred.WorkspaceID != ws {
					writeError(w, http.StatusNotFound, "NOT_FOUND", "Workspace not found")
					return
				}
				ctx := WithCredential(r.Context(), cred)
				ctx = WithWorkspaceID(ctx, ws)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		})
	}
}

func apiKeyCode(err error) string {
	switch {
	case errors.Is(err, models.ErrKeyRevoked):
		return "KEY_REVOKED"
	case errors.Is(err, models.ErrKeyExpired):
		return "KEY_EXPIRED"
	default:
		return "INVALID_KEY"
	}
}

// bearerToken extracts the Authorization bearer token, if any.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
