package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marklog/marklog/pkg/api/middleware"
	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/metrics"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

// Claim lease bounds. A claim request may ask for any TTL up to the cap;
// absent expiresInSeconds the default lease applies.
const (
	defaultClaimTTL = 5 * time.Minute
	maxClaimTTL     = 24 * time.Hour
)

// AppendHandler serves the append log and heartbeat endpoints.
type AppendHandler struct {
	store   store.Store
	emitter *webhook.Emitter
	audit   *audit.Recorder
	metrics *metrics.ServiceMetrics
	quota   int64
}

// NewAppendHandler creates a new AppendHandler.
func NewAppendHandler(st store.Store, emitter *webhook.Emitter, recorder *audit.Recorder, svc *metrics.ServiceMetrics, quota int64) *AppendHandler {
	return &AppendHandler{store: st, emitter: emitter, audit: recorder, metrics: svc, quota: quota}
}

// AppendRequest is the request body for POST .../append.
type AppendRequest struct {
	Type             string   `json:"type"`
	Author           string   `json:"author"`
	Content          string   `json:"content,omitempty"`
	Ref              string   `json:"ref,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	Value            string   `json:"value,omitempty"`
	ExpiresInSeconds int      `json:"expiresInSeconds,omitempty"`
}

// AppendResponse is the wire shape of an accepted append.
type AppendResponse struct {
	AppendID  string `json:"appendId"`
	FilePath  string `json:"filePath"`
	Type      string `json:"type"`
	Author    string `json:"author"`
	Status    string `json:"status,omitempty"`
	Ref       string `json:"ref,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func appendToResponse(a *models.Append) AppendResponse {
	return AppendResponse{
		AppendID:  a.AppendID,
		FilePath:  a.FilePath,
		Type:      a.Type,
		Author:    a.Author,
		Status:    a.Status,
		Ref:       a.Ref,
		ExpiresAt: models.FormatTimePtr(a.ExpiresAt),
		CreatedAt: models.FormatTime(a.CreatedAt),
	}
}

// Append handles POST /a/{key}/{path}/append.
//
// Appending to a path with no file creates an empty file first, so a
// fresh workspace can start logging without a separate PUT.
func (h *AppendHandler) Append(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "/append")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.Authorize(models.PermissionAppend); err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizePath(path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var req AppendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !models.AppendType(req.Type).IsValid() {
		BadRequest(w, "Unknown append type")
		return
	}
	if err := models.ValidateAuthor(req.Author); err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := cred.CheckAuthor(req.Author); err != nil {
		WriteDomainError(w, err)
		return
	}

	file, err := h.fileForAppend(r, cred, path)
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}

	a, err := h.buildAppend(cred, file, &req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	if err := h.insertAppend(r, cred, a, &req); err != nil {
		if errors.Is(err, models.ErrClaimConflict) {
			h.metrics.ClaimConflict()
		}
		WriteCapabilityError(w, err)
		return
	}

	h.metrics.AppendAccepted(a.Type)
	if models.AppendType(a.Type) == models.AppendClaim {
		h.metrics.ClaimAcquired()
	}
	h.afterAppend(r, cred, a)

	WriteCreated(w, appendToResponse(a))
}

// fileForAppend resolves the target file, creating an empty one when the
// path has never been written.
func (h *AppendHandler) fileForAppend(r *http.Request, cred *capability.Credential, path string) (*models.File, error) {
	file, err := h.store.GetFile(r.Context(), cred.WorkspaceID, path)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, models.ErrFileNotFound) {
		return nil, err
	}

	file = &models.File{
		WorkspaceID: cred.WorkspaceID,
		Path:        path,
		Content:     "",
		ETag:        models.ComputeETag(""),
		SizeBytes:   0,
	}
	if _, err := h.store.CreateFile(r.Context(), file, h.quota); err != nil {
		if errors.Is(err, models.ErrDuplicateFile) {
			// Lost the create race; the file exists now.
			return h.store.GetFile(r.Context(), cred.WorkspaceID, path)
		}
		return nil, err
	}
	return file, nil
}

// buildAppend validates the type-specific fields and assembles the row.
func (h *AppendHandler) buildAppend(cred *capability.Credential, file *models.File, req *AppendRequest) (*models.Append, error) {
	a := &models.Append{
		FileID:         file.ID,
		WorkspaceID:    cred.WorkspaceID,
		FilePath:       file.Path,
		Author:         req.Author,
		Type:           req.Type,
		Content:        req.Content,
		ContentPreview: models.BuildContentPreview(req.Content),
		Ref:            req.Ref,
	}
	if err := a.SetLabels(req.Labels); err != nil {
		return nil, err
	}

	switch models.AppendType(req.Type) {
	case models.AppendTask:
		if req.Priority != "" && !models.TaskPriority(req.Priority).IsValid() {
			return nil, errInvalidRequest("Unknown task priority")
		}
		a.Priority = req.Priority
	case models.AppendClaim:
		if req.Ref == "" {
			return nil, errInvalidRequest("Claim requires a ref to a task append")
		}
		ttl, err := claimTTL(req.ExpiresInSeconds)
		if err != nil {
			return nil, err
		}
		expiry := time.Now().Add(ttl)
		a.ExpiresAt = &expiry
		a.Status = models.ClaimStatusActive
	case models.AppendRenew, models.AppendComplete, models.AppendCancel, models.AppendBlocked, models.AppendResponse, models.AppendAnswer:
		if req.Ref == "" {
			return nil, errInvalidRequest("This append type requires a ref")
		}
	case models.AppendVote:
		if !models.IsValidVoteValue(req.Value) {
			return nil, errInvalidRequest("Vote value must be +1 or -1")
		}
		a.Value = req.Value
	}
	return a, nil
}

// insertAppend routes the row to the store operation matching its
// semantics: claims and claim transitions take the conditional paths.
func (h *AppendHandler) insertAppend(r *http.Request, cred *capability.Credential, a *models.Append, req *AppendRequest) error {
	ctx := r.Context()
	switch models.AppendType(a.Type) {
	case models.AppendClaim:
		guard := store.ClaimGuard{WIPLimit: cred.WIPLimit, Scope: cred.Scope}
		return h.store.CreateClaimAppend(ctx, a, guard)

	case models.AppendRenew:
		target, err := h.store.GetAppend(ctx, a.FileID, a.Ref)
		if err != nil {
			return err
		}
		if target.Author != a.Author {
			return models.ErrNotClaimOwner
		}
		ttl, err := claimTTL(req.ExpiresInSeconds)
		if err != nil {
			return err
		}
		return h.store.CreateRenewAppend(ctx, a, time.Now().Add(ttl))

	case models.AppendComplete, models.AppendCancel, models.AppendBlocked:
		target, err := h.store.GetAppend(ctx, a.FileID, a.Ref)
		if err != nil {
			return err
		}
		if models.AppendType(target.Type) == models.AppendClaim {
			return h.store.CreateClaimTransitionAppend(ctx, a, claimTransitionStatus(a.Type))
		}
		// Targeting the task itself: a plain log row, the fold derives
		// the terminal state.
		return h.store.CreateAppend(ctx, a)

	default:
		return h.store.CreateAppend(ctx, a)
	}
}

func claimTransitionStatus(appendType string) string {
	switch models.AppendType(appendType) {
	case models.AppendComplete:
		return models.ClaimStatusCompleted
	case models.AppendCancel:
		return models.ClaimStatusCancelled
	default:
		return models.ClaimStatusBlocked
	}
}

func claimTTL(seconds int) (time.Duration, error) {
	if seconds == 0 {
		return defaultClaimTTL, nil
	}
	ttl := time.Duration(seconds) * time.Second
	if ttl < time.Second || ttl > maxClaimTTL {
		return 0, errInvalidRequest("expiresInSeconds must be between 1 and 86400")
	}
	return ttl, nil
}

// afterAppend emits events and records audit, skipped when the client
// already disconnected.
func (h *AppendHandler) afterAppend(r *http.Request, cred *capability.Credential, a *models.Append) {
	if r.Context().Err() != nil {
		return
	}

	base := webhook.Event{
		WorkspaceID: cred.WorkspaceID,
		Path:        a.FilePath,
		Data:        map[string]any{"appendId": a.AppendID, "type": a.Type, "author": a.Author},
	}

	base.Kind = models.EventAppendCreated
	h.emitter.Emit(r.Context(), base)

	if kind, ok := taskEventKind(a.Type); ok {
		base.Kind = kind
		h.emitter.Emit(r.Context(), base)
	}

	h.audit.Record(cred.WorkspaceID, cred.ActorType(), cred.Actor(), "append.create", a.ID,
		map[string]any{"type": a.Type, "path": a.FilePath})
	_ = h.store.TouchWorkspaceActivity(r.Context(), cred.WorkspaceID, time.Now())
}

func taskEventKind(appendType string) (models.EventKind, bool) {
	switch models.AppendType(appendType) {
	case models.AppendTask:
		return models.EventTaskCreated, true
	case models.AppendClaim:
		return models.EventTaskClaimed, true
	case models.AppendComplete, models.AppendResponse:
		return models.EventTaskCompleted, true
	case models.AppendCancel:
		return models.EventTaskCancelled, true
	case models.AppendBlocked:
		return models.EventTaskStalled, true
	}
	return "", false
}

// HeartbeatRequest is the request body for POST .../heartbeat.
type HeartbeatRequest struct {
	Author      string         `json:"author"`
	Status      string         `json:"status,omitempty"`
	CurrentTask string         `json:"currentTask,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Heartbeat handles POST /a/{key}/{path}/heartbeat. Heartbeats upsert on
// (workspace, author); the path only anchors the scope check.
func (h *AppendHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	cred := middleware.GetCredential(r.Context())

	path, err := resourcePath(r, "/heartbeat")
	if err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.Authorize(models.PermissionAppend); err != nil {
		WriteCapabilityError(w, err)
		return
	}
	if err := cred.AuthorizePath(path); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	var req HeartbeatRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := models.ValidateAuthor(req.Author); err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := cred.CheckAuthor(req.Author); err != nil {
		WriteDomainError(w, err)
		return
	}

	status := req.Status
	if status == "" {
		status = string(models.HeartbeatAlive)
	}
	if !models.HeartbeatStatus(status).IsValid() {
		BadRequest(w, "Heartbeat status must be alive, idle or busy")
		return
	}

	var metadata string
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			BadRequest(w, "Invalid heartbeat metadata")
			return
		}
		if len(raw) > models.MaxHeartbeatMetadataBytes {
			BadRequest(w, "Heartbeat metadata too large")
			return
		}
		metadata = string(raw)
	}

	now := time.Now()
	hb := &models.Heartbeat{
		WorkspaceID: cred.WorkspaceID,
		Author:      req.Author,
		ID:          models.NewID(models.PrefixHeartbeat),
		Status:      status,
		CurrentTask: req.CurrentTask,
		Metadata:    metadata,
		LastSeen:    now.Unix(),
	}
	if err := h.store.UpsertHeartbeat(r.Context(), hb); err != nil {
		WriteCapabilityError(w, err)
		return
	}

	h.metrics.AppendAccepted(string(models.AppendHeartbeat))
	if r.Context().Err() == nil {
		h.emitter.Emit(r.Context(), webhook.Event{
			Kind:        models.EventHeartbeat,
			WorkspaceID: cred.WorkspaceID,
			Path:        path,
			Data:        map[string]any{"author": req.Author, "status": status},
		})
	}

	WriteOK(w, map[string]any{
		"author":   hb.Author,
		"status":   hb.Status,
		"lastSeen": hb.LastSeen,
	})
}

// requestError is a handler-level validation failure rendered as 400
// INVALID_REQUEST by the translator.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func errInvalidRequest(msg string) error { return &requestError{msg: msg} }
