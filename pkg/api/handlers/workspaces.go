package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

// WorkspaceHandler serves workspace lifecycle operations: claiming,
// renaming, key rotation, deletion and claim lease transitions.
type WorkspaceHandler struct {
	store    store.Store
	resolver *capability.Resolver
	emitter  *webhook.Emitter
	audit    *audit.Recorder
}

// NewWorkspaceHandler creates a new WorkspaceHandler.
func NewWorkspaceHandler(st store.Store, resolver *capability.Resolver, emitter *webhook.Emitter, recorder *audit.Recorder) *WorkspaceHandler {
	return &WorkspaceHandler{store: st, resolver: resolver, emitter: emitter, audit: recorder}
}

// Claim handles POST /w/{key}/claim: an OAuth user takes ownership of a
// bootstrapped workspace. Requires both the write capability key and a
// valid session; a workspace is claimable exactly once.
func (h *WorkspaceHandler) Claim(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())
	claims := middleware.GetSession(r.Context())
	if claims == nil {
		Unauthorized(w, "Claiming a workspace requires a session")
		return
	}

	now := time.Now()
	user, err := h.store.UpsertUser(r.Context(), &models.User{
		ID:          claims.UserID,
		Email:       claims.Email,
		Name:        claims.Name,
		LastLoginAt: &now,
	})
	if err != nil {
		InternalServerError(w)
		return
	}

	if err := h.store.ClaimWorkspace(r.Context(), cred.WorkspaceID, user.Email, now); err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := h.store.LinkUserWorkspace(r.Context(), user.ID, cred.WorkspaceID); err != nil {
		WriteDomainError(w, err)
		return
	}

	h.audit.Record(cred.WorkspaceID, models.ActorSession, user.ID, "workspace.claim", cred.WorkspaceID,
		map[string]any{"email": user.Email})

	WriteOK(w, map[string]any{
		"workspaceId": cred.WorkspaceID,
		"claimedBy":   user.Email,
		"claimedAt":   models.FormatTime(now),
	})
}

// RenameRequest is the request body for workspace rename routes.
type RenameRequest struct {
	Name string `json:"name"`
}

// RenameByKey handles POST /w/{key}/workspace. Only a workspace-scoped
// write key may rename; narrower keys get the capability 404.
func (h *WorkspaceHandler) RenameByKey(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())
	if cred.Scope.Type != models.ScopeWorkspace {
		NotFound(w, CodePermissionDenied, "Not found")
		return
	}
	h.rename(w, r, cred.WorkspaceID)
}

// Rename handles PATCH /workspaces/{ws}/name.
func (h *WorkspaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	h.rename(w, r, middleware.GetWorkspaceID(r.Context()))
}

func (h *WorkspaceHandler) rename(w http.ResponseWriter, r *http.Request, ws string) {
	var req RenameRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(w, "Workspace name is required")
		return
	}
	if len(name) > 255 {
		BadRequest(w, "Workspace name must be at most 255 characters")
		return
	}

	if err := h.store.RenameWorkspace(r.Context(), ws, name); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "workspace.rename", ws,
		map[string]any{"name": name})

	WriteOK(w, map[string]any{"workspaceId": ws, "name": name})
}

// RotatedKeyResponse is one replacement key from rotate-all. The
// plaintext is returned exactly once.
type RotatedKeyResponse struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Permission string `json:"permission"`
	ScopeType  string `json:"scopeType"`
	ScopePath  string `json:"scopePath,omitempty"`
}

// RotateAll handles POST /workspaces/{ws}/rotate-all: atomically revoke
// every active capability key and mint a replacement for each. Old keys
// fail on their next use.
func (h *WorkspaceHandler) RotateAll(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	plaintexts := make(map[string]string)
	replacements, err := h.store.RotateAllCapabilityKeys(r.Context(), ws, time.Now(),
		func(old *models.CapabilityKey) (*models.CapabilityKey, error) {
			plaintext, prefix, hash, err := capability.GenerateCapabilityKey()
			if err != nil {
				return nil, err
			}
			replacement := &models.CapabilityKey{
				WorkspaceID: old.WorkspaceID,
				Prefix:      prefix,
				KeyHash:     hash,
				Permission:  old.Permission,
				ScopeType:   old.ScopeType,
				ScopePath:   old.ScopePath,
				BoundAuthor: old.BoundAuthor,
				WIPLimit:    old.WIPLimit,
				ExpiresAt:   old.ExpiresAt,
			}
			plaintexts[hash] = plaintext
			return replacement, nil
		})
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	h.resolver.InvalidateWorkspace(ws)

	out := make([]RotatedKeyResponse, 0, len(replacements))
	for _, k := range replacements {
		out = append(out, RotatedKeyResponse{
			ID:         k.ID,
			Key:        plaintexts[k.KeyHash],
			Permission: k.Permission,
			ScopeType:  k.ScopeType,
			ScopePath:  k.ScopePath,
		})
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "workspace.rotate_keys", ws,
		map[string]any{"rotated": len(out)})

	WriteOK(w, map[string]any{"keys": out})
}

// Delete handles DELETE /workspaces/{ws}: soft delete, purged later by
// the maintenance sweep.
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireSession(w, r) {
		return
	}
	ws := middleware.GetWorkspaceID(r.Context())

	if err := h.store.SoftDeleteWorkspace(r.Context(), ws, time.Now()); err != nil {
		WriteDomainError(w, err)
		return
	}

	cred := middleware.GetCredential(r.Context())
	h.audit.Record(ws, cred.ActorType(), cred.Actor(), "workspace.delete", ws, nil)

	WriteOK(w, map[string]any{"workspaceId": ws, "deleted": true})
}

// ClaimTransitionRequest is the optional body for claim transitions.
type ClaimTransitionRequest struct {
	ExpiresInSeconds int    `json:"expiresInSeconds,omitempty"`
	Content          string `json:"content,omitempty"`
}

// ClaimTransition handles POST /workspaces/{ws}/claims/{cid}/{action}
// where action is renew, complete, cancel or block. cid is the global
// claim append id (fileId + "_a<seq>"). The generated append is authored
// by the claim holder.
func (h *WorkspaceHandler) ClaimTransition(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspaceID(r.Context())
	cid := chi.URLParam(r, "cid")
	action := chi.URLParam(r, "action")

	fileID, localID, ok := splitClaimID(cid)
	if !ok {
		NotFound(w, CodeNotFound, "Claim not found")
		return
	}

	var req ClaimTransitionRequest
	if r.ContentLength > 0 && !decodeJSONBody(w, r, &req) {
		return
	}

	claim, err := h.store.GetAppend(r.Context(), fileID, localID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if claim.WorkspaceID != ws || models.AppendType(claim.Type) != models.AppendClaim {
		NotFound(w, CodeNotFound, "Claim not found")
		return
	}

	a := &models.Append{
		FileID:      claim.FileID,
		WorkspaceID: claim.WorkspaceID,
		FilePath:    claim.FilePath,
		Author:      claim.Author,
		Ref:         claim.AppendID,
		Content:     req.Content,
	}
	_ = a.SetLabels(nil)

	switch action {
	case "renew":
		a.Type = string(models.AppendRenew)
		ttl, err := claimTTL(req.ExpiresInSeconds)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		err = h.store.CreateRenewAppend(r.Context(), a, time.Now().Add(ttl))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
	case "complete", "cancel", "block":
		appendType := models.AppendComplete
		switch action {
		case "cancel":
			appendType = models.AppendCancel
		case "block":
			appendType = models.AppendBlocked
		}
		a.Type = string(appendType)
		if err := h.store.CreateClaimTransitionAppend(r.Context(), a, claimTransitionStatus(a.Type)); err != nil {
			WriteDomainError(w, err)
			return
		}
	default:
		BadRequest(w, "Unknown claim action")
		return
	}

	if r.Context().Err() == nil {
		if kind, ok := taskEventKind(a.Type); ok {
			h.emitter.Emit(r.Context(), webhook.Event{
				Kind:        kind,
				WorkspaceID: ws,
				Path:        a.FilePath,
				Data:        map[string]any{"claimId": claim.AppendID, "action": action},
			})
		}
		cred := middleware.GetCredential(r.Context())
		h.audit.Record(ws, cred.ActorType(), cred.Actor(), "claim."+action, cid, nil)
	}

	WriteOK(w, appendToResponse(a))
}

// splitClaimID parses a global claim id into file id and local append
// id. The local id always has the form "a<seq>".
func splitClaimID(cid string) (fileID, localID string, ok bool) {
	idx := strings.LastIndex(cid, "_a")
	if idx <= 0 || idx+2 >= len(cid) {
		return "", "", false
	}
	return cid[:idx], cid[idx+1:], true
}
