package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

// FileHandler serves file CRUD on capability URLs.
type FileHandler struct {
	store    store.Store
	emitter  *webhook.Emitter
	audit    *audit.Recorder
	metrics  *metrics.ServiceMetrics
	quota    int64
	maxBytes int64
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(st store.Store, emitter *webhook.Emitter, recorder *audit.Recorder, svc *metrics.ServiceMetrics, quota, maxBytes int64) *FileHandler {
	return &FileHandler{store: st, emitter: emitter, audit: recorder, metrics: svc, quota: quota, maxBytes: maxBytes}
}

// FileContentRequest is the request body for POST and PUT file routes.
type FileContentRequest struct {
	Content string `json:"content"`
}

// FileResponse is the wire shape of a file.
type FileResponse struct {
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	Content   string `json:"content,omitempty"`
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	DeletedAt string `json:"deletedAt,omitempty"`
}

func fileToResponse(f *models.File, withContent bool) FileResponse {
	resp := FileResponse{
		Filename:  models.BaseName(f.Path),
		Path:      f.Path,
		ETag:      f.ETag,
		Size:      f.SizeBytes,
		CreatedAt: models.FormatTime(f.CreatedAt),
		UpdatedAt: models.FormatTime(f.UpdatedAt),
		DeletedAt: models.FormatTimePtr(f.DeletedAt),
	}
	if withContent {
		resp.Content = f.Content
	}
	return resp
}

// Get handles GET /{r|a|w}/{key}/{path}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizePath(path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	file, err := h.store.GetFile(r.Context(), cred.WorkspaceID, path)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}

	w.Header().Set("ETag", file.ETag)
	WriteOK(w, fileToResponse(file, true))
}

// Create handles POST /w/{key}/{path}: create-only, no overwrite.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := h.authorizeWrite(cred, path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var req FileContentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !h.checkContentSize(w, req.Content) {
		return
	}

	file := &models.File{
		WorkspaceID: cred.WorkspaceID,
		Path:        path,
		Content:     req.Content,
		ETag:        models.ComputeETag(req.Content),
		SizeBytes:   int64(len(req.Content)),
	}
	if _, err := h.store.CreateFile(r.Context(), file, h.quota); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			h.metrics.QuotaRejected()
		}
		WriteCapabilityError(w, err)
		return
	}

	h.afterMutation(r, cred.WorkspaceID, models.EventFileCreated, path, "file.create", file.ID, nil)

	w.Header().Set("ETag", file.ETag)
	WriteCreated(w, fileToResponse(file, false))
}

// Put handles PUT /w/{key}/{path}: upsert with optional If-Match.
func (h *FileHandler) Put(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := h.authorizeWrite(cred, path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var req FileContentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !h.checkContentSize(w, req.Content) {
		return
	}

	ifMatch := parseIfMatch(r)
	file, created, err := h.store.PutFile(r.Context(), cred.WorkspaceID, path, req.Content, ifMatch, h.quota)
	if err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			h.metrics.QuotaRejected()
		}
		WriteCapabilityError(w, err)
		return
	}

	event := models.EventFileUpdated
	if created {
		event = models.EventFileCreated
	}
	h.afterMutation(r, cred.WorkspaceID, event, path, "file.put", file.ID, map[string]any{"etag": file.ETag})

	w.Header().Set("ETag", file.ETag)
	if created {
		WriteCreated(w, fileToResponse(file, false))
		return
	}
	WriteOK(w, fileToResponse(file, false))
}

// Delete handles DELETE /w/{key}/{path}: soft delete by default,
// permanent with ?permanent=true.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := h.authorizeWrite(cred, path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var file *models.File
	permanent := r.URL.Query().Get("permanent") == "true"
	if permanent {
		file, err = h.store.HardDeleteFile(r.Context(), cred.WorkspaceID, path)
	} else {
		file, err = h.store.SoftDeleteFile(r.Context(), cred.WorkspaceID, path, time.Now())
	}
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}

	h.afterMutation(r, cred.WorkspaceID, models.EventFileDeleted, path, "file.delete", file.ID,
		map[string]any{"permanent": permanent})

	WriteOK(w, map[string]any{"path": path, "deleted": true, "permanent": permanent})
}

// authorizeWrite gates mutating file routes on the write permission and
// the credential's path scope.
func (h *FileHandler) authorizeWrite(cred *capability.Credential, path string) error {
	if err := cred.Authorize(models.PermissionWrite); err != nil {
		return err
	}
	return cred.AuthorizePath(path)
}

// checkContentSize enforces the per-file content cap. Rejections carry
// the X-Content-Size-Limit header.
func (h *FileHandler) checkContentSize(w http.ResponseWriter, content string) bool {
	if int64(len(content)) > h.maxBytes {
		w.Header().Set("X-Content-Size-Limit", strconv.FormatInt(h.maxBytes, 10))
		WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Content exceeds the per-file size limit")
		return false
	}
	return true
}

// afterMutation emits the webhook event and records the audit entry,
// unless the client has already gone away.
func (h *FileHandler) afterMutation(r *http.Request, workspaceID string, kind models.EventKind, path, action, resourceID string, details map[string]any) {
	if r.Context().Err() != nil {
		return
	}
	cred := middleware.GetCredential(r.Context())
	h.emitter.Emit(r.Context(), webhook.Event{
		Kind:        kind,
		WorkspaceID: workspaceID,
		Path:        path,
	})
	h.audit.Record(workspaceID, cred.ActorType(), cred.Actor(), action, resourceID, details)
	_ = h.store.TouchWorkspaceActivity(r.Context(), workspaceID, time.Now())
}
