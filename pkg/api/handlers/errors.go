package handlers

import (
	"errors"
	"net/http"

	"github.com/marklog/marklog/internal/logger"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/models"
)

// Wire error codes. Statuses follow the taxonomy: credential failures on
// capability URLs always render 404 regardless of code, validation is
// 400, concurrency losers get 409 or 412, size rejections 413.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidKey       = "INVALID_KEY"
	CodeKeyExpired       = "KEY_EXPIRED"
	CodeKeyRevoked       = "KEY_REVOKED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeFolderNotFound   = "FOLDER_NOT_FOUND"
	CodeWebhookNotFound  = "WEBHOOK_NOT_FOUND"
	CodeGone             = "GONE"
	CodeConflict         = "CONFLICT"
	CodeFolderExists     = "FOLDER_ALREADY_EXISTS"
	CodeAlreadyClaimed   = "ALREADY_CLAIMED"
	CodeAuthorMismatch   = "AUTHOR_MISMATCH"
	CodeInvalidAuthor    = "INVALID_AUTHOR"
	CodeInvalidPath      = "INVALID_PATH"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidWebhook   = "INVALID_WEBHOOK_URL"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeWebhookLimit     = "WEBHOOK_LIMIT_EXCEEDED"
	CodeWIPExceeded      = "WIP_EXCEEDED"
	CodeClaimExpired     = "CLAIM_EXPIRED"
	CodeServerError      = "SERVER_ERROR"
)

// Shorthand writers for the common statuses.

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusNotFound, code, message)
}

func InternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeServerError, "Internal server error")
}

// WriteDomainError is the central translator from domain errors to the
// failure envelope. It covers every sentinel the store and capability
// layers return; anything unknown is logged and rendered as 500 without
// leaking internals.
func WriteDomainError(w http.ResponseWriter, err error) {
	var etagConflict *models.ETagConflictError
	if errors.As(err, &etagConflict) {
		WriteErrorDetails(w, http.StatusPreconditionFailed, CodeConflict,
			"File was modified since last read",
			map[string]any{
				"currentEtag":  etagConflict.Current,
				"providedEtag": etagConflict.Provided,
			})
		return
	}

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		BadRequest(w, reqErr.msg)
		return
	}

	var authorMismatch *capability.AuthorMismatchError
	if errors.As(err, &authorMismatch) {
		WriteError(w, http.StatusBadRequest, CodeAuthorMismatch, authorMismatch.Error())
		return
	}

	switch {
	case errors.Is(err, models.ErrFileNotFound):
		NotFound(w, CodeFileNotFound, "File not found")
	case errors.Is(err, models.ErrFileDeleted):
		WriteError(w, http.StatusGone, CodeGone, "File has been deleted")
	case errors.Is(err, models.ErrDuplicateFile):
		WriteError(w, http.StatusConflict, CodeConflict, "File already exists")
	case errors.Is(err, models.ErrFolderNotFound):
		NotFound(w, CodeFolderNotFound, "Folder not found")
	case errors.Is(err, models.ErrDuplicateFolder):
		WriteError(w, http.StatusConflict, CodeFolderExists, "Folder already exists")
	case errors.Is(err, models.ErrWorkspaceNotFound), errors.Is(err, models.ErrWorkspaceDeleted):
		NotFound(w, CodeNotFound, "Workspace not found")
	case errors.Is(err, models.ErrAlreadyClaimed):
		WriteError(w, http.StatusBadRequest, CodeAlreadyClaimed, "Workspace has already been claimed")
	case errors.Is(err, models.ErrQuotaExceeded):
		WriteError(w, http.StatusRequestEntityTooLarge, CodeQuotaExceeded, "Workspace storage quota exceeded")
	case errors.Is(err, models.ErrInvalidPath):
		// Never echo the offending path.
		WriteError(w, http.StatusBadRequest, CodeInvalidPath, "Path traversal")
	case errors.Is(err, capability.ErrInvalidEncoding):
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid URL encoding")
	case errors.Is(err, models.ErrInvalidAuthor):
		WriteError(w, http.StatusBadRequest, CodeInvalidAuthor, "Author must match ^[A-Za-z0-9_-]{1,64}$ and must not be \"system\"")
	case errors.Is(err, models.ErrTaskNotFound):
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "Referenced task does not exist")
	case errors.Is(err, models.ErrClaimNotFound):
		NotFound(w, CodeNotFound, "Claim not found")
	case errors.Is(err, models.ErrClaimConflict):
		WriteError(w, http.StatusConflict, CodeConflict, "Task already has an active claim")
	case errors.Is(err, models.ErrClaimExpired):
		WriteError(w, http.StatusBadRequest, CodeClaimExpired, "Claim is no longer active")
	case errors.Is(err, models.ErrNotClaimOwner):
		WriteError(w, http.StatusForbidden, CodeForbidden, "Claim is held by another author")
	case errors.Is(err, models.ErrWIPExceeded):
		WriteError(w, http.StatusBadRequest, CodeWIPExceeded, "Work-in-progress limit reached")
	case errors.Is(err, models.ErrAppendNotFound):
		NotFound(w, CodeNotFound, "Append not found")
	case errors.Is(err, models.ErrPermissionDenied):
		WriteError(w, http.StatusForbidden, CodeForbidden, "Insufficient permission")
	case errors.Is(err, models.ErrWebhookNotFound):
		NotFound(w, CodeWebhookNotFound, "Webhook not found")
	case errors.Is(err, models.ErrWebhookLimitExceeded):
		WriteError(w, http.StatusTooManyRequests, CodeWebhookLimit, "Too many active webhooks for this scope")
	case errors.Is(err, models.ErrInvalidWebhookURL):
		WriteError(w, http.StatusBadRequest, CodeInvalidWebhook, "Webhook URL is not allowed")
	case errors.Is(err, models.ErrExportNotFound):
		NotFound(w, CodeNotFound, "Export job not found")
	case errors.Is(err, models.ErrKeyNotFound), errors.Is(err, models.ErrKeyRevoked), errors.Is(err, models.ErrKeyExpired):
		NotFound(w, CodeNotFound, "Not found")
	default:
		logger.Error("unhandled domain error", "error", err)
		InternalServerError(w)
	}
}

// WriteCapabilityError renders a domain error on a capability URL, where
// permission failures must be indistinguishable from missing resources
// at the status level.
func WriteCapabilityError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrPermissionDenied) {
		NotFound(w, CodePermissionDenied, "Not found")
		return
	}
	WriteDomainError(w, err)
}
