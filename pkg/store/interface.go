// Package store provides the persistence layer for the marklog service.
//
// This package implements the Store interface for workspaces, files,
// folders, appends, heartbeats, credentials, webhooks, audit entries and
// export jobs.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package store

import (
	"context"
	"time"

	"github.com/marklog/marklog/pkg/models"
)

// ClaimGuard carries the per-credential constraints checked inside the
// claim insert transaction. A zero WIPLimit means unlimited.
type ClaimGuard struct {
	WIPLimit int
	Scope    models.Scope
}

// Store provides the marklog persistence interface.
//
// Thread Safety: Implementations must be safe for concurrent use from
// multiple goroutines.
//
// Conditional updates serialize the two races the service cares about:
// claim creation (one active claim per task) and If-Match file writes
// (one writer per etag generation).
type Store interface {
	// ============================================
	// WORKSPACE OPERATIONS
	// ============================================

	// CreateWorkspace creates a new workspace.
	// The ID will be generated if empty. Returns the generated ID.
	CreateWorkspace(ctx context.Context, ws *models.Workspace) (string, error)

	// GetWorkspace returns a workspace by ID.
	// Returns models.ErrWorkspaceNotFound if it doesn't exist and
	// models.ErrWorkspaceDeleted if it has been soft-deleted.
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)

	// ListWorkspaces returns non-deleted workspaces, newest first.
	ListWorkspaces(ctx context.Context) ([]*models.Workspace, error)

	// RenameWorkspace updates the workspace name.
	// Returns models.ErrWorkspaceNotFound if the workspace doesn't exist.
	RenameWorkspace(ctx context.Context, id, name string) error

	// ClaimWorkspace marks the workspace as claimed by an OAuth user.
	// The update is conditional on the workspace being unclaimed; a second
	// claim returns models.ErrAlreadyClaimed.
	ClaimWorkspace(ctx context.Context, id, email string, now time.Time) error

	// TouchWorkspaceActivity updates lastActivityAt. Best-effort.
	TouchWorkspaceActivity(ctx context.Context, id string, now time.Time) error

	// SoftDeleteWorkspace marks the workspace deleted.
	// Returns models.ErrWorkspaceNotFound if it doesn't exist,
	// models.ErrWorkspaceDeleted if already deleted.
	SoftDeleteWorkspace(ctx context.Context, id string, now time.Time) error

	// PurgeDeletedWorkspaces hard-deletes workspaces soft-deleted before
	// the cutoff, together with their dependent rows. Returns the number
	// of workspaces removed.
	PurgeDeletedWorkspaces(ctx context.Context, cutoff time.Time) (int64, error)

	// WorkspaceUsage returns the byte sum of non-deleted file content.
	WorkspaceUsage(ctx context.Context, id string) (int64, error)

	// ============================================
	// FILE OPERATIONS
	// ============================================

	// GetFile returns the non-deleted file at (workspace, path).
	// Returns models.ErrFileDeleted if only a soft-deleted file exists,
	// models.ErrFileNotFound otherwise.
	GetFile(ctx context.Context, workspaceID, path string) (*models.File, error)

	// GetFileByID returns a file by its ID regardless of delete state.
	GetFileByID(ctx context.Context, id string) (*models.File, error)

	// CreateFile inserts a new file at a path with no live file. A
	// soft-deleted file at the same path does not block creation; the new
	// file gets a fresh ID. Returns models.ErrDuplicateFile if a live file
	// exists and models.ErrQuotaExceeded over the workspace budget.
	CreateFile(ctx context.Context, file *models.File, quota int64) (string, error)

	// PutFile creates or updates the file at (workspace, path).
	// When ifMatch is non-nil the update is conditional on the current
	// etag; a losing writer gets *models.ETagConflictError. A soft-deleted
	// file at the path returns models.ErrFileDeleted. Returns the stored
	// file and whether it was created.
	PutFile(ctx context.Context, workspaceID, path, content string, ifMatch *string, quota int64) (*models.File, bool, error)

	// SoftDeleteFile tombstones the file at (workspace, path).
	// Returns models.ErrFileDeleted if already tombstoned,
	// models.ErrFileNotFound if no file ever lived there.
	SoftDeleteFile(ctx context.Context, workspaceID, path string, now time.Time) (*models.File, error)

	// HardDeleteFile removes the file row and its appends permanently.
	HardDeleteFile(ctx context.Context, workspaceID, path string) (*models.File, error)

	// ListFilesByParent returns non-deleted files directly under a folder,
	// ordered by name, case-insensitive.
	ListFilesByParent(ctx context.Context, workspaceID, parent string) ([]*models.File, error)

	// ListFilesUnder returns all non-deleted files below a folder prefix
	// ("/" for the whole workspace), ordered by path.
	ListFilesUnder(ctx context.Context, workspaceID, folder string) ([]*models.File, error)

	// CountFilesUnder counts non-deleted files below a folder prefix.
	CountFilesUnder(ctx context.Context, workspaceID, folder string) (int64, error)

	// SearchFiles matches q against path and content of non-deleted files
	// within the given scope.
	SearchFiles(ctx context.Context, workspaceID string, scope models.Scope, q string, limit int) ([]*models.File, error)

	// PurgeDeletedFiles hard-deletes files soft-deleted before the cutoff,
	// together with their appends. Returns the number of files removed.
	PurgeDeletedFiles(ctx context.Context, cutoff time.Time) (int64, error)

	// ============================================
	// FOLDER OPERATIONS
	// ============================================

	// CreateFolder materializes an explicit folder.
	// Returns models.ErrDuplicateFolder if it already exists.
	CreateFolder(ctx context.Context, folder *models.Folder) (string, error)

	// GetFolder returns an explicit folder by (workspace, path).
	// Returns models.ErrFolderNotFound if it doesn't exist.
	GetFolder(ctx context.Context, workspaceID, path string) (*models.Folder, error)

	// ListFoldersByParent returns explicit folders directly under a
	// parent, ordered by name, case-insensitive.
	ListFoldersByParent(ctx context.Context, workspaceID, parent string) ([]*models.Folder, error)

	// FolderExists reports whether a folder exists either explicitly or
	// virtually (at least one non-deleted file below it).
	FolderExists(ctx context.Context, workspaceID, path string) (bool, error)

	// DeleteFolder soft-deletes every live file under the folder and
	// drops the explicit folder rows at and below it, returning the
	// number of files tombstoned. Returns models.ErrFolderNotFound if
	// the folder exists neither explicitly nor virtually.
	DeleteFolder(ctx context.Context, workspaceID, path string, now time.Time) (int64, error)

	// ============================================
	// APPEND OPERATIONS
	// ============================================

	// CreateAppend assigns the next per-file sequence number and inserts
	// the append. Returns models.ErrFileNotFound if the file is missing,
	// models.ErrFileDeleted if it is tombstoned.
	CreateAppend(ctx context.Context, a *models.Append) error

	// CreateClaimAppend inserts a claim append with first-writer-wins
	// semantics: the insert fails with models.ErrClaimConflict when the
	// task already has an active unexpired claim or a terminal event, with
	// models.ErrTaskNotFound when the ref doesn't name a task, and with
	// models.ErrWIPExceeded when the author holds too many active claims
	// in the guard scope.
	CreateClaimAppend(ctx context.Context, a *models.Append, guard ClaimGuard) error

	// CreateRenewAppend extends an active claim's lease and records the
	// renew append. Only the claim owner may renew; an inactive or expired
	// claim returns models.ErrClaimExpired.
	CreateRenewAppend(ctx context.Context, a *models.Append, newExpiry time.Time) error

	// CreateClaimTransitionAppend records a complete/cancel/blocked append
	// targeting a claim and transitions the stored claim status. Returns
	// models.ErrClaimNotFound if the ref doesn't name a claim and
	// models.ErrClaimConflict if the claim is no longer active.
	CreateClaimTransitionAppend(ctx context.Context, a *models.Append, newStatus string) error

	// GetAppend returns one append by file and local id ("a1", "a2", ...).
	GetAppend(ctx context.Context, fileID, localID string) (*models.Append, error)

	// ListAppendsByFile returns a file's appends in log order.
	ListAppendsByFile(ctx context.Context, fileID string) ([]*models.Append, error)

	// ListAppendsByWorkspace returns appends for non-deleted files in the
	// scope, in (file, seq) order, optionally bounded by since.
	ListAppendsByWorkspace(ctx context.Context, workspaceID string, scope models.Scope, since *time.Time) ([]*models.Append, error)

	// CountActiveClaims counts unexpired active claims held by an author
	// within a scope.
	CountActiveClaims(ctx context.Context, workspaceID, author string, scope models.Scope, now time.Time) (int64, error)

	// ListExpiredClaims returns active claims whose lease has lapsed, for
	// the stall sweep. The sweep never mutates the log.
	ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*models.Append, error)

	// ============================================
	// HEARTBEAT OPERATIONS
	// ============================================

	// UpsertHeartbeat inserts or refreshes the (workspace, author) row.
	UpsertHeartbeat(ctx context.Context, hb *models.Heartbeat) error

	// ListHeartbeats returns all heartbeats for a workspace.
	ListHeartbeats(ctx context.Context, workspaceID string) ([]*models.Heartbeat, error)

	// ============================================
	// CAPABILITY KEY OPERATIONS
	// ============================================

	// CreateCapabilityKey stores a new capability key record.
	CreateCapabilityKey(ctx context.Context, key *models.CapabilityKey) (string, error)

	// GetCapabilityKeyByHash returns a key by its SHA-256 hash.
	// Returns models.ErrKeyNotFound if no key matches.
	GetCapabilityKeyByHash(ctx context.Context, hash string) (*models.CapabilityKey, error)

	// ListCapabilityKeys returns all keys for a workspace, newest first.
	ListCapabilityKeys(ctx context.Context, workspaceID string) ([]*models.CapabilityKey, error)

	// RevokeCapabilityKey marks a key revoked.
	// Returns models.ErrKeyNotFound if missing, models.ErrKeyRevoked if
	// already revoked.
	RevokeCapabilityKey(ctx context.Context, workspaceID, id string, now time.Time) error

	// RotateAllCapabilityKeys revokes every active key in the workspace
	// and inserts a replacement for each, atomically. The mint callback
	// builds the replacement row for an old key. Returns the replacements.
	RotateAllCapabilityKeys(ctx context.Context, workspaceID string, now time.Time, mint func(old *models.CapabilityKey) (*models.CapabilityKey, error)) ([]*models.CapabilityKey, error)

	// TouchCapabilityKeyUsed updates lastUsedAt. Best-effort.
	TouchCapabilityKeyUsed(ctx context.Context, id string, now time.Time) error

	// ============================================
	// API KEY OPERATIONS
	// ============================================

	// CreateApiKey stores a new API key record.
	CreateApiKey(ctx context.Context, key *models.ApiKey) (string, error)

	// GetApiKeyByHash returns a key by its SHA-256 hash.
	// Returns models.ErrKeyNotFound if no key matches.
	GetApiKeyByHash(ctx context.Context, hash string) (*models.ApiKey, error)

	// ListApiKeys returns non-revoked API keys for a workspace.
	ListApiKeys(ctx context.Context, workspaceID string) ([]*models.ApiKey, error)

	// RevokeApiKey marks a key revoked.
	// Returns models.ErrKeyNotFound if missing or owned by another
	// workspace, models.ErrKeyRevoked if already revoked.
	RevokeApiKey(ctx context.Context, workspaceID, id string, now time.Time) error

	// TouchApiKeyUsed updates lastUsedAt. Best-effort.
	TouchApiKeyUsed(ctx context.Context, id string, now time.Time) error

	// ============================================
	// WEBHOOK OPERATIONS
	// ============================================

	// CreateWebhook stores a webhook, enforcing the per-scope cap on
	// active hooks. Returns models.ErrWebhookLimitExceeded at the cap.
	CreateWebhook(ctx context.Context, hook *models.Webhook) (string, error)

	// GetWebhook returns a non-deleted webhook by workspace and ID.
	GetWebhook(ctx context.Context, workspaceID, id string) (*models.Webhook, error)

	// GetWebhookByID returns a non-deleted webhook by ID alone. The
	// delivery dispatcher uses it since queue rows only carry hook ids.
	GetWebhookByID(ctx context.Context, id string) (*models.Webhook, error)

	// ListWebhooks returns non-deleted webhooks for a workspace.
	ListWebhooks(ctx context.Context, workspaceID string) ([]*models.Webhook, error)

	// ListActiveWebhooks returns active, non-deleted webhooks for event
	// fanout. Scope matching happens in the caller.
	ListActiveWebhooks(ctx context.Context, workspaceID string) ([]*models.Webhook, error)

	// UpdateWebhook persists changes to url, events, status, scope.
	UpdateWebhook(ctx context.Context, hook *models.Webhook) error

	// SoftDeleteWebhook marks a webhook deleted.
	SoftDeleteWebhook(ctx context.Context, workspaceID, id string, now time.Time) error

	// ============================================
	// WEBHOOK DELIVERY OPERATIONS
	// ============================================

	// EnqueueDeliveries inserts delivery rows for dispatch.
	EnqueueDeliveries(ctx context.Context, deliveries []*models.WebhookDelivery) error

	// DueDeliveries returns pending deliveries whose next attempt is due,
	// oldest first.
	DueDeliveries(ctx context.Context, now time.Time, limit int) ([]*models.WebhookDelivery, error)

	// MarkDeliveryAttempt records a failed attempt and schedules the next.
	MarkDeliveryAttempt(ctx context.Context, id string, attempts int, lastError string, nextAttempt time.Time) error

	// MarkDeliveryDelivered finalizes a delivery as delivered.
	MarkDeliveryDelivered(ctx context.Context, id string, attempts int) error

	// MarkDeliveryFailed finalizes a delivery as failed.
	MarkDeliveryFailed(ctx context.Context, id string, attempts int, lastError string) error

	// ============================================
	// AUDIT OPERATIONS
	// ============================================

	// InsertAuditEntries batch-inserts audit rows.
	InsertAuditEntries(ctx context.Context, entries []*models.AuditLogEntry) error

	// ListAuditEntries returns recent audit rows for a workspace.
	ListAuditEntries(ctx context.Context, workspaceID string, limit int) ([]*models.AuditLogEntry, error)

	// PruneAuditEntries removes audit rows older than the cutoff.
	PruneAuditEntries(ctx context.Context, cutoff time.Time) (int64, error)

	// ============================================
	// EXPORT OPERATIONS
	// ============================================

	// CreateExportJob stores a new export job in pending state.
	CreateExportJob(ctx context.Context, job *models.ExportJob) (string, error)

	// GetExportJob returns an export job by workspace and ID.
	GetExportJob(ctx context.Context, workspaceID, id string) (*models.ExportJob, error)

	// ListExportJobs returns a workspace's export jobs, newest first.
	ListExportJobs(ctx context.Context, workspaceID string) ([]*models.ExportJob, error)

	// ClaimNextExportJob transitions the oldest pending job to running.
	// Returns models.ErrExportNotFound when the queue is empty.
	ClaimNextExportJob(ctx context.Context, now time.Time) (*models.ExportJob, error)

	// CompleteExportJob finalizes a job as done.
	CompleteExportJob(ctx context.Context, id, artifactRef string, fileCount int, sizeBytes int64, now time.Time) error

	// FailExportJob finalizes a job as failed.
	FailExportJob(ctx context.Context, id, errMsg string, now time.Time) error

	// ============================================
	// USER OPERATIONS
	// ============================================

	// UpsertUser creates or refreshes a user record from session claims.
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserByID returns a user by ID.
	// Returns models.ErrUserNotFound if the user doesn't exist.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// LinkUserWorkspace records workspace ownership.
	// Returns models.ErrAlreadyClaimed if the workspace is already linked.
	LinkUserWorkspace(ctx context.Context, userID, workspaceID string) error

	// GetWorkspaceOwner returns the owning user ID, or "" when unclaimed.
	GetWorkspaceOwner(ctx context.Context, workspaceID string) (string, error)

	// ListUserWorkspaces returns the workspace IDs a user owns.
	ListUserWorkspaces(ctx context.Context, userID string) ([]string, error)

	// ============================================
	// HEALTH & LIFECYCLE
	// ============================================

	// Healthcheck verifies the store is operational.
	Healthcheck(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
