package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/ratelimit"
)

// CapabilityAuth resolves the key segment of a capability URL and gates
// the request on the mount's minimum permission.
//
// Every credential-side failure renders as HTTP 404 with a specific code:
// the status never distinguishes a bad key from a revoked or expired one,
// only the body does. Resource 404s share the same status on purpose.
func CapabilityAuth(resolver *capability.Resolver, limits *ratelimit.Set, svc *metrics.ServiceMetrics, minPerm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "key")

			cred, err := resolver.ResolveCapability(r.Context(), key)
			if err != nil {
				writeError(w, http.StatusNotFound, capabilityCode(err), "Not found")
				return
			}

			if !cred.Permission.Satisfies(minPerm) {
				writeError(w, http.StatusNotFound, "PERMISSION_DENIED", "Not found")
				return
			}

			if limits != nil {
				lim := limits.Capability
				if isAppendRequest(r) {
					lim = limits.Append
				}
				if ok, retryAfter := lim.Allow(cred.KeyID); !ok {
					svc.RateLimited("capability")
					writeRateLimited(w, retryAfter)
					return
				}
			}

			ctx := WithCredential(r.Context(), cred)
			ctx = WithWorkspaceID(ctx, cred.WorkspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// capabilityCode maps resolver errors to wire codes. Unknown errors
// collapse to INVALID_KEY rather than leaking store internals.
func capabilityCode(err error) string {
	switch {
	case errors.Is(err, models.ErrKeyRevoked):
		return "KEY_REVOKED"
	case errors.Is(err, models.ErrKeyExpired):
		return "KEY_EXPIRED"
	default:
		return "INVALID_KEY"
	}
}

// isAppendRequest reports whether the request lands on the append or
// heartbeat endpoint, which share the append rate budget.
func isAppendRequest(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return strings.HasSuffix(r.URL.Path, "/append") || strings.HasSuffix(r.URL.Path, "/heartbeat")
}
