package handlers

import (
	"net/http"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/orchestration"
	"github.com/marklog/marklog/pkg/store"
)

// BoardHandler serves the derived orchestration views: board, search and
// agent liveness.
type BoardHandler struct {
	store  store.Store
	engine *orchestration.Engine
}

// NewBoardHandler creates a new BoardHandler.
func NewBoardHandler(st store.Store, engine *orchestration.Engine) *BoardHandler {
	return &BoardHandler{store: st, engine: engine}
}

// credentialScope returns the scope the request is allowed to see.
// Session and API-key credentials see the whole workspace.
func credentialScope(r *http.Request) models.Scope {
	cred := middleware.GetCredential(r.Context())
	if cred.Kind == capability.KindCapability && cred.Scope.Type != "" {
		return cred.Scope
	}
	return models.Scope{Type: models.ScopeWorkspace}
}

// Orchestration handles GET .../orchestration for both capability URLs
// and /workspaces/{ws}.
func (h *BoardHandler) Orchestration(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())
	q := r.URL.Query()

	filters, err := orchestration.ParseFilters(
		q.Get("status"), q.Get("priority"), q.Get("agent"),
		q.Get("file"), q.Get("folder"), q.Get("since"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	limit, ok := queryInt(r, "limit", orchestration.DefaultLimit)
	if !ok || limit < orchestration.MinLimit || limit > orchestration.MaxLimit {
		BadRequest(w, "limit must be between 1 and 1000")
		return
	}

	board, err := h.engine.Board(r.Context(), cred.WorkspaceID, credentialScope(r), filters, q.Get("cursor"), limit)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	WritePage(w, map[string]any{
		"summary":  board.Summary,
		"tasks":    board.Tasks,
		"claims":   board.Claims,
		"agents":   board.Agents,
		"workload": board.Workload,
	}, board.Pagination)
}

// SearchResult is one row of a search response.
type SearchResult struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
	UpdatedAt string `json:"updatedAt"`
}

// Search handles GET .../search?q=. Read permission suffices; results
// stay inside the credential's scope.
func (h *BoardHandler) Search(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	q := r.URL.Query().Get("q")
	if q == "" {
		BadRequest(w, "Query parameter q is required")
		return
	}
	limit, ok := queryInt(r, "limit", 50)
	if !ok || limit < 1 || limit > 1000 {
		BadRequest(w, "limit must be between 1 and 1000")
		return
	}

	files, err := h.store.SearchFiles(r.Context(), cred.WorkspaceID, credentialScope(r), q, limit)
	if err != nil {
		InternalServerError(w)
		return
	}

	results := make([]SearchResult, 0, len(files))
	for _, f := range files {
		results = append(results, SearchResult{
			Path:      f.Path,
			Filename:  models.BaseName(f.Path),
			ETag:      f.ETag,
			Size:      f.SizeBytes,
			UpdatedAt: models.FormatTime(f.UpdatedAt),
		})
	}
	WriteOK(w, map[string]any{"query": q, "results": results})
}

// Liveness handles GET .../agents/liveness.
func (h *BoardHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	agents, err := h.engine.Liveness(r.Context(), cred.WorkspaceID)
	if err != nil {
		InternalServerError(w)
		return
	}
	WriteOK(w, map[string]any{"agents": agents})
}
