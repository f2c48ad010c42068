package models

import (
	"errors"
	"fmt"
)

// Common errors for workspace and append log operations.
var (
	// Workspace errors
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrWorkspaceDeleted   = errors.New("workspace is deleted")
	ErrDuplicateWorkspace = errors.New("workspace already exists")
	ErrAlreadyClaimed     = errors.New("workspace already claimed")

	// File errors
	ErrFileNotFound  = errors.New("file not found")
	ErrFileDeleted   = errors.New("file is deleted")
	ErrDuplicateFile = errors.New("file already exists")
	ErrEtagMismatch  = errors.New("etag mismatch")
	ErrQuotaExceeded = errors.New("workspace quota exceeded")
	ErrInvalidPath   = errors.New("invalid path")

	// Folder errors
	ErrFolderNotFound  = errors.New("folder not found")
	ErrDuplicateFolder = errors.New("folder already exists")

	// Append and claim errors
	ErrAppendNotFound = errors.New("append not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrClaimNotFound  = errors.New("claim not found")
	ErrClaimConflict  = errors.New("task already has an active claim")
	ErrClaimExpired   = errors.New("claim has expired")
	ErrNotClaimOwner  = errors.New("claim is held by another author")
	ErrWIPExceeded    = errors.New("work-in-progress limit reached")
	ErrInvalidAuthor  = errors.New("invalid author")
	ErrAuthorMismatch = errors.New("author does not match key binding")

	// Credential errors
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyExpired       = errors.New("key has expired")
	ErrKeyRevoked       = errors.New("key has been revoked")
	ErrPermissionDenied = errors.New("permission denied")

	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")

	// Webhook errors
	ErrWebhookNotFound      = errors.New("webhook not found")
	ErrWebhookLimitExceeded = errors.New("webhook limit reached for scope")
	ErrInvalidWebhookURL    = errors.New("webhook url is not allowed")
	ErrDeliveryNotFound     = errors.New("webhook delivery not found")

	// Export errors
	ErrExportNotFound = errors.New("export job not found")
)

// ETagConflictError reports a failed If-Match write. It matches
// ErrEtagMismatch under errors.Is and carries both etags for the
// conflict response body.
type ETagConflictError struct {
	Current  string
	Provided string
}

func (e *ETagConflictError) Error() string {
	return fmt.Sprintf("etag mismatch: current %s, provided %s", e.Current, e.Provided)
}

// Is makes errors.Is(err, ErrEtagMismatch) succeed for conflict errors.
func (e *ETagConflictError) Is(target error) bool {
	return target == ErrEtagMismatch
}
