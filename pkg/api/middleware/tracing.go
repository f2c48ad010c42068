package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marklog/marklog/internal/telemetry"
)

// Tracing opens a server span per request. The chi route pattern and
// response status are attached after the handler runs, once the router
// has matched. A disabled tracer makes every span a no-op.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartRequestSpan(r.Context(), r.Method, r.URL.Path)
		defer span.End()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(telemetry.HTTPRoute(pattern))
			}
		}
		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
	})
}
