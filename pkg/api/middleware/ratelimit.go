package middleware

import (
	"net"
	"net/http"

	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/ratelimit"
)

// BootstrapLimit throttles workspace creation per client IP.
func BootstrapLimit(limits *ratelimit.Set, svc *metrics.ServiceMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limits != nil {
				if ok, retryAfter := limits.Bootstrap.Allow(clientIP(r)); !ok {
					svc.RateLimited("bootstrap")
					writeRateLimited(w, retryAfter)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// KeyCreateLimit throttles API key creation per workspace. It must run
// after WorkspaceAuth so the workspace id is on the context.
func KeyCreateLimit(limits *ratelimit.Set, svc *metrics.ServiceMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limits != nil {
				if ok, retryAfter := limits.KeyCreate.Allow(GetWorkspaceID(r.Context())); !ok {
					svc.RateLimited("apikey")
					writeRateLimited(w, retryAfter)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's client address without the port. RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
