package handlers

import (
	"net/http"

	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// BootstrapHandler creates workspaces anonymously. It is the only
// unauthenticated mutation in the API and can be disabled outright.
type BootstrapHandler struct {
	store   store.Store
	audit   *audit.Recorder
	enabled bool
}

// NewBootstrapHandler creates a new BootstrapHandler.
func NewBootstrapHandler(st store.Store, recorder *audit.Recorder, enabled bool) *BootstrapHandler {
	return &BootstrapHandler{store: st, audit: recorder, enabled: enabled}
}

// BootstrapRequest is the request body for POST /bootstrap.
type BootstrapRequest struct {
	Name string `json:"name,omitempty"`
}

// BootstrapResponse returns the new workspace and its three root
// capability key plaintexts. The plaintexts are shown exactly once.
type BootstrapResponse struct {
	Workspace struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		CreatedAt string `json:"createdAt"`
	} `json:"workspace"`
	ReadKey   string `json:"readKey"`
	AppendKey string `json:"appendKey"`
	WriteKey  string `json:"writeKey"`
}

// Bootstrap handles POST /bootstrap.
func (h *BootstrapHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		NotFound(w, CodeNotFound, "Not found")
		return
	}

	var req BootstrapRequest
	if r.ContentLength > 0 && !decodeJSONBody(w, r, &req) {
		return
	}
	name := req.Name
	if name == "" {
		name = "Untitled workspace"
	}
	if len(name) > 255 {
		BadRequest(w, "Workspace name must be at most 255 characters")
		return
	}

	ws := &models.Workspace{Name: name}
	if _, err := h.store.CreateWorkspace(r.Context(), ws); err != nil {
		InternalServerError(w)
		return
	}

	var resp BootstrapResponse
	resp.Workspace.ID = ws.ID
	resp.Workspace.Name = ws.Name
	resp.Workspace.CreatedAt = models.FormatTime(ws.CreatedAt)

	for _, perm := range []models.Permission{models.PermissionRead, models.PermissionAppend, models.PermissionWrite} {
		plaintext, prefix, hash, err := capability.GenerateCapabilityKey()
		if err != nil {
			InternalServerError(w)
			return
		}
		key := &models.CapabilityKey{
			WorkspaceID: ws.ID,
			Prefix:      prefix,
			KeyHash:     hash,
			Permission:  string(perm),
			ScopeType:   string(models.ScopeWorkspace),
			ScopePath:   "/",
		}
		if _, err := h.store.CreateCapabilityKey(r.Context(), key); err != nil {
			InternalServerError(w)
			return
		}
		switch perm {
		case models.PermissionRead:
			resp.ReadKey = plaintext
		case models.PermissionAppend:
			resp.AppendKey = plaintext
		case models.PermissionWrite:
			resp.WriteKey = plaintext
		}
	}

	h.audit.Record(ws.ID, models.ActorSystem, "bootstrap", "workspace.create", ws.ID,
		map[string]any{"name": ws.Name})

	WriteCreated(w, resp)
}
