package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// APIKeyHandler manages workspace API keys. Only the workspace owner's
// session may mint or revoke keys.
type APIKeyHandler struct {
	store store.Store
	audit *audit.Recorder
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(st store.Store, recorder *audit.Recorder) *APIKeyHandler {
	return &APIKeyHandler{store: st, audit: recorder}
}

// CreateAPIKeyRequest is the request body for POST .../api-keys.
type CreateAPIKeyRequest struct {
	Name          string   `json:"name"`
	Mode          string   `json:"mode,omitempty"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays int      `json:"expiresInDays,omitempty"`
}

// APIKeyResponse is the wire shape of an API key. Key carries the
// plaintext and is only set on the create response.
type APIKeyResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	KeyPrefix  string   `json:"keyPrefix"`
	Mode       string   `json:"mode"`
	Scopes     []string `json:"scopes"`
	Key        string   `json:"key,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	ExpiresAt  string   `json:"expiresAt,omitempty"`
	LastUsedAt string   `json:"lastUsedAt,omitempty"`
}

func apiKeyToResponse(k *models.ApiKey) APIKeyResponse {
	scopes, _ := k.GetScopes()
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Mode:       k.Mode,
		Scopes:     scopes,
		CreatedAt:  models.FormatTime(k.CreatedAt),
		ExpiresAt:  models.FormatTimePtr(k.ExpiresAt),
		LastUsedAt: models.FormatTimePtr(k.LastUsedAt),
	}
}

// requireSession gates owner-only routes: an API key cannot manage keys.
func requireSession(w http.ResponseWriter, r *http.Request) bool {
	cred := middleware.GetCredential(r.Context())
	if cred.Kind != capability.KindSession {
		Forbidden(w, "This endpoint requires a session")
		return false
	}
	return true
}

// List handles GET /workspaces/{ws}/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	keys, err := h.store.ListApiKeys(r.Context(), ws)
	if err != nil {
		InternalServerError(w)
		return
	}
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyToResponse(k))
	}
	WriteOK(w, out)
}

// Create handles POST /workspaces/{ws}/api-keys. The plaintext is
// returned exactly once.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	var req CreateAPIKeyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	name := models.SanitizeKeyName(req.Name)
	if name == "" {
		BadRequest(w, "Key name is required")
		return
	}
	if len(name) > 64 {
		BadRequest(w, "Key name must be at most 64 characters")
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = string(models.KeyModeLive)
	}
	if !models.KeyMode(mode).IsValid() {
		BadRequest(w, "Key mode must be live or test")
		return
	}

	if len(req.Scopes) == 0 {
		BadRequest(w, "At least one scope is required")
		return
	}
	for _, s := range req.Scopes {
		if !models.IsValidAPIKeyScope(s) {
			BadRequest(w, "Unknown scope: "+s)
			return
		}
	}

	plaintext, prefix, hash, err := capability.GenerateAPIKey(mode)
	if err != nil {
		InternalServerError(w)
		return
	}

	key := &models.ApiKey{
		WorkspaceID: ws,
		Name:        name,
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Mode:        mode,
	}
	if err := key.SetScopes(req.Scopes); err != nil {
		InternalServerError(w)
		return
	}
	if req.ExpiresInDays > 0 {
		expiry := time.Now().AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &expiry
	}

	if _, err := h.store.CreateApiKey(r.Context(), key); err != nil {
		InternalServerError(w)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "apikey.create", key.ID,
		map[string]any{"name": name, "mode": mode})

	resp := apiKeyToResponse(key)
	resp.Key = plaintext
	WriteCreated(w, resp)
}

// Revoke handles DELETE /workspaces/{ws}/api-keys/{id}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.RevokeApiKey(r.Context(), ws, id, time.Now()); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "apikey.revoke", id, nil)

	WriteOK(w, map[string]any{"id": id, "revoked": true})
}
