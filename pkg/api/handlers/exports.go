package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/export"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// ExportHandler manages workspace export jobs and artifact download.
type ExportHandler struct {
	store   store.Store
	exports *export.Service
	audit   *audit.Recorder
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(st store.Store, exports *export.Service, recorder *audit.Recorder) *ExportHandler {
	return &ExportHandler{store: st, exports: exports, audit: recorder}
}

// ExportJobResponse is the wire shape of an export job.
type ExportJobResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RequestedBy string `json:"requestedBy,omitempty"`
	FileCount   int    `json:"fileCount"`
	SizeBytes   int64  `json:"sizeBytes"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"createdAt"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func exportToResponse(job *models.ExportJob) ExportJobResponse {
	return ExportJobResponse{
		ID:          job.ID,
		Status:      job.Status,
		RequestedBy: job.RequestedBy,
		FileCount:   job.FileCount,
		SizeBytes:   job.SizeBytes,
		Error:       job.Error,
		CreatedAt:   models.FormatTime(job.CreatedAt),
		StartedAt:   models.FormatTimePtr(job.StartedAt),
		CompletedAt: models.FormatTimePtr(job.CompletedAt),
	}
}

// authorizeExport admits the owner's session or an API key carrying the
// export scope.
func authorizeExport(w http.ResponseWriter, r *http.Request) bool {
	cred := middleware.GetCredential(r.Context())
	if cred.Kind == capability.KindAPIKey && !cred.HasScope("export") {
		Forbidden(w, "API key lacks the export scope")
		return false
	}
	return true
}

// Enqueue handles POST /workspaces/{ws}/export.
func (h *ExportHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if !authorizeExport(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())
	cred := middleware.GetCredential(r.Context())

	job, err := h.exports.Enqueue(r.Context(), ws, cred.Actor())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "export.create", job.ID, nil)

	WriteCreated(w, exportToResponse(job))
}

// List handles GET /workspaces/{ws}/exports.
func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	if !authorizeExport(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	jobs, err := h.store.ListExportJobs(r.Context(), ws)
	if err != nil {
		InternalServerError(w)
		return
	}
	out := make([]ExportJobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, exportToResponse(job))
	}
	WriteOK(w, out)
}

// Get handles GET /workspaces/{ws}/exports/{id}.
func (h *ExportHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !authorizeExport(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	job, err := h.store.GetExportJob(r.Context(), ws, chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteOK(w, exportToResponse(job))
}

// Download handles GET /workspaces/{ws}/exports/{id}/download, streaming
// the finished archive.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	if !authorizeExport(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	job, err := h.store.GetExportJob(r.Context(), ws, chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	archive, err := h.exports.Artifact(r.Context(), job)
	if err != nil {
		NotFound(w, CodeNotFound, "Export artifact not available")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".zip"))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(archive)))
	_, _ = w.Write(archive)
}
