package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marklog/marklog/pkg/api/handlers"
	mw "github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/export"
	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/orchestration"
	"github.com/marklog/marklog/pkg/ratelimit"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

// Options bundles the collaborators the router wires into handlers.
type Options struct {
	Store    store.Store
	Resolver *capability.Resolver
	Sessions *auth.Service
	Engine   *orchestration.Engine
	Emitter  *webhook.Emitter
	Policy   *webhook.Policy
	Exports  *export.Service
	Audit    *audit.Recorder
	Limits   *ratelimit.Set
	Service  *metrics.ServiceMetrics
	HTTP     *metrics.HTTPMetrics
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Capability URLs mount under /r, /a and /w; the mount's minimum
// permission is checked at resolution time and per-operation permissions
// inside the handlers, so an underpowered key always sees the 404-style
// capability failure rather than a 405.
func NewRouter(cfg APIConfig, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Tracing)
	r.Use(mw.RequestLogger)
	r.Use(mw.Metrics(opts.HTTP))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(mw.BodyLimit(cfg.BodyLimit))
	r.Use(mw.SessionLoader(opts.Sessions))

	files := handlers.NewFileHandler(opts.Store, opts.Emitter, opts.Audit, opts.Service, cfg.QuotaBytes, cfg.FileSizeLimit)
	folders := handlers.NewFolderHandler(opts.Store, opts.Audit)
	appends := handlers.NewAppendHandler(opts.Store, opts.Emitter, opts.Audit, opts.Service, cfg.QuotaBytes)
	board := handlers.NewBoardHandler(opts.Store, opts.Engine)
	bootstrap := handlers.NewBootstrapHandler(opts.Store, opts.Audit, cfg.BootstrapEnabled)
	authn := handlers.NewAuthHandler(opts.Store, opts.Sessions)
	apikeys := handlers.NewAPIKeyHandler(opts.Store, opts.Audit)
	webhooks := handlers.NewWebhookHandler(opts.Store, opts.Policy, opts.Audit)
	workspaces := handlers.NewWorkspaceHandler(opts.Store, opts.Resolver, opts.Emitter, opts.Audit)
	exports := handlers.NewExportHandler(opts.Store, opts.Exports, opts.Audit)
	admin := handlers.NewAdminHandler()
	health := handlers.NewHealthHandler(opts.Store)

	// postResource fans a POST on the file wildcard out to the append,
	// heartbeat or create-file handler by path suffix.
	postResource := func(w http.ResponseWriter, req *http.Request) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/append"):
			appends.Append(w, req)
		case strings.HasSuffix(req.URL.Path, "/heartbeat"):
			appends.Heartbeat(w, req)
		default:
			files.Create(w, req)
		}
	}

	// capabilityRoutes registers the shared resource surface. Static
	// segments register before the file wildcard so "orchestration" or
	// "folders" never resolve as file paths.
	capabilityRoutes := func(r chi.Router) {
		r.Get("/", folders.List)
		r.Get("/folders", folders.List)
		r.Get("/folders/*", folders.List)
		r.Post("/folders", folders.Create)
		r.Post("/folders/*", folders.Create)
		r.Delete("/folders", folders.Delete)
		r.Delete("/folders/*", folders.Delete)
		r.Get("/orchestration", board.Orchestration)
		r.Get("/search", board.Search)
		r.Get("/agents/liveness", board.Liveness)
		r.Post("/claim", workspaces.Claim)
		r.Post("/workspace", workspaces.RenameByKey)

		r.Get("/*", files.Get)
		r.Post("/*", postResource)
		r.Put("/*", files.Put)
		r.Delete("/*", files.Delete)
	}

	mounts := []struct {
		prefix  string
		minPerm models.Permission
	}{
		{"/r", models.PermissionRead},
		{"/a", models.PermissionAppend},
		{"/w", models.PermissionWrite},
	}
	for _, m := range mounts {
		r.Route(m.prefix+"/{key}", func(r chi.Router) {
			r.Use(mw.CapabilityAuth(opts.Resolver, opts.Limits, opts.Service, m.minPerm))
			capabilityRoutes(r)
		})
	}

	// Anonymous workspace creation, rate limited per IP.
	r.With(mw.BootstrapLimit(opts.Limits, opts.Service)).Post("/bootstrap", bootstrap.Bootstrap)

	r.Route("/auth", func(r chi.Router) {
		r.With(mw.RequireSession).Get("/me", authn.Me)
		r.Post("/logout", authn.Logout)
	})

	r.Route("/workspaces/{ws}", func(r chi.Router) {
		r.Use(mw.WorkspaceAuth(opts.Store, opts.Resolver))

		r.Get("/api-keys", apikeys.List)
		r.With(mw.KeyCreateLimit(opts.Limits, opts.Service)).Post("/api-keys", apikeys.Create)
		r.Delete("/api-keys/{id}", apikeys.Revoke)

		r.Get("/webhooks", webhooks.List)
		r.Post("/webhooks", webhooks.Create)
		r.Get("/webhooks/{id}", webhooks.Get)
		r.Patch("/webhooks/{id}", webhooks.Update)
		r.Delete("/webhooks/{id}", webhooks.Delete)

		r.Get("/orchestration", board.Orchestration)
		r.Post("/claims/{cid}/{action}", workspaces.ClaimTransition)

		r.Patch("/name", workspaces.Rename)
		r.Post("/rotate-all", workspaces.RotateAll)
		r.Delete("/", workspaces.Delete)

		r.Post("/export", exports.Enqueue)
		r.Get("/exports", exports.List)
		r.Get("/exports/{id}", exports.Get)
		r.Get("/exports/{id}/download", exports.Download)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(mw.AdminAuth(cfg.AdminSecret)).Get("/admin/metrics", admin.Metrics)
		r.With(mw.APIKeyAuth(opts.Resolver)).Get("/agents/liveness", board.Liveness)
	})

	r.Get("/health", health.Health)

	// Test fixtures never exist in production.
	if !cfg.Production {
		testenv := handlers.NewTestEnvHandler(opts.Limits)
		r.Post("/__test/reset", testenv.Reset)
	}

	return r
}
