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
	"github.com/marklog/marklog/pkg/webhook"
)

// WebhookHandler manages webhook subscriptions. Every stored URL has
// passed the SSRF policy, both at creation and on later URL changes.
type WebhookHandler struct {
	store  store.Store
	policy *webhook.Policy
	audit  *audit.Recorder
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(st store.Store, policy *webhook.Policy, recorder *audit.Recorder) *WebhookHandler {
	return &WebhookHandler{store: st, policy: policy, audit: recorder}
}

// CreateWebhookRequest is the request body for POST .../webhooks.
type CreateWebhookRequest struct {
	URL       string   `json:"url"`
	ScopeType string   `json:"scopeType,omitempty"`
	ScopePath string   `json:"scopePath,omitempty"`
	Recursive bool     `json:"recursive,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// UpdateWebhookRequest is the request body for PATCH .../webhooks/{id}.
// Nil fields are left unchanged.
type UpdateWebhookRequest struct {
	URL       *string   `json:"url,omitempty"`
	Status    *string   `json:"status,omitempty"`
	Events    *[]string `json:"events,omitempty"`
	Recursive *bool     `json:"recursive,omitempty"`
}

// WebhookResponse is the wire shape of a webhook. Secret is only set on
// the create response.
type WebhookResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	ScopeType string   `json:"scopeType"`
	ScopePath string   `json:"scopePath"`
	Recursive bool     `json:"recursive"`
	Events    []string `json:"events"`
	Status    string   `json:"status"`
	Secret    string   `json:"secret,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func webhookToResponse(hook *models.Webhook) WebhookResponse {
	kinds, _ := hook.GetEvents()
	events := make([]string, 0, len(kinds))
	for _, k := range kinds {
		events = append(events, string(k))
	}
	return WebhookResponse{
		ID:        hook.ID,
		URL:       hook.URL,
		ScopeType: hook.ScopeType,
		ScopePath: hook.ScopePath,
		Recursive: hook.Recursive,
		Events:    events,
		Status:    hook.Status,
		CreatedAt: models.FormatTime(hook.CreatedAt),
		UpdatedAt: models.FormatTime(hook.UpdatedAt),
	}
}

func parseEventKinds(raw []string) ([]models.EventKind, bool) {
	kinds := make([]models.EventKind, 0, len(raw))
	for _, e := range raw {
		kind := models.EventKind(e)
		if !kind.IsValid() {
			return nil, false
		}
		kinds = append(kinds, kind)
	}
	return kinds, true
}

// List handles GET /workspaces/{ws}/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())

	hooks, err := h.store.ListWebhooks(r.Context(), ws)
	if err != nil {
		InternalServerError(w)
		return
	}
	out := make([]WebhookResponse, 0, len(hooks))
	for _, hook := range hooks {
		out = append(out, webhookToResponse(hook))
	}
	WriteOK(w, out)
}

// Get handles GET /workspaces/{ws}/webhooks/{id}.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())

	hook, err := h.store.GetWebhook(r.Context(), ws, chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteOK(w, webhookToResponse(hook))
}

// Create handles POST /workspaces/{ws}/webhooks. The signing secret is
// returned exactly once.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())

	var req CreateWebhookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		BadRequest(w, "Webhook URL is required")
		return
	}
	if err := h.policy.ValidateURL(r.Context(), req.URL); err != nil {
		WriteDomainError(w, err)
		return
	}

	scopeType := req.ScopeType
	if scopeType == "" {
		scopeType = string(models.ScopeWorkspace)
	}
	if !models.ScopeType(scopeType).IsValid() {
		BadRequest(w, "Scope type must be workspace, folder or file")
		return
	}
	scopePath := req.ScopePath
	if scopeType != string(models.ScopeWorkspace) {
		normalized, err := models.NormalizePath(scopePath)
		if err != nil || normalized == "/" {
			BadRequest(w, "A folder or file scope requires a path")
			return
		}
		scopePath = normalized
	} else {
		scopePath = ""
	}

	kinds, ok := parseEventKinds(req.Events)
	if !ok {
		BadRequest(w, "Unknown event kind")
		return
	}

	secret, err := capability.GenerateWebhookSecret()
	if err != nil {
		InternalServerError(w)
		return
	}

	hook := &models.Webhook{
		WorkspaceID: ws,
		ScopeType:   scopeType,
		ScopePath:   scopePath,
		Recursive:   req.Recursive,
		URL:         req.URL,
		Secret:      secret,
		Status:      string(models.WebhookActive),
	}
	if err := hook.SetEvents(kinds); err != nil {
		InternalServerError(w)
		return
	}

	if _, err := h.store.CreateWebhook(r.Context(), hook); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "webhook.create", hook.ID,
		map[string]any{"url": hook.URL})

	resp := webhookToResponse(hook)
	resp.Secret = secret
	WriteCreated(w, resp)
}

// Update handles PATCH /workspaces/{ws}/webhooks/{id}. A URL change runs
// the SSRF policy again.
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())

	hook, err := h.store.GetWebhook(r.Context(), ws, chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	var req UpdateWebhookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.URL != nil {
		if err := h.policy.ValidateURL(r.Context(), *req.URL); err != nil {
			WriteDomainError(w, err)
			return
		}
		hook.URL = *req.URL
	}
	if req.Status != nil {
		if !models.WebhookStatus(*req.Status).IsValid() {
			BadRequest(w, "Status must be active or paused")
			return
		}
		hook.Status = *req.Status
	}
	if req.Events != nil {
		kinds, ok := parseEventKinds(*req.Events)
		if !ok {
			BadRequest(w, "Unknown event kind")
			return
		}
		if err := hook.SetEvents(kinds); err != nil {
			InternalServerError(w)
			return
		}
	}
	if req.Recursive != nil {
		hook.Recursive = *req.Recursive
	}

	if err := h.store.UpdateWebhook(r.Context(), hook); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "webhook.update", hook.ID, nil)

	WriteOK(w, webhookToResponse(hook))
}

// Delete handles DELETE /workspaces/{ws}/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.SoftDeleteWebhook(r.Context(), ws, id, time.Now()); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "webhook.delete", id, nil)

	WriteOK(w, map[string]any{"id": id, "deleted": true})
}
