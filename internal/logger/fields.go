package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log
// aggregation and querying.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// HTTP requests
	KeyRequestID  = "request_id"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyBytes      = "bytes"
	KeyDuration   = "duration"
	KeyRemoteAddr = "remote_addr"
	KeyClientIP   = "client_ip"

	// Domain objects
	KeyWorkspaceID = "workspace_id"
	KeyFilePath    = "file"
	KeyAppendID    = "append_id"
	KeyClaimID     = "claim_id"
	KeyAuthor      = "author"
	KeyKeyID       = "key_id"
	KeyWebhookID   = "webhook_id"
	KeyDeliveryID  = "delivery_id"
	KeyAttempt     = "attempt"
	KeyExportID    = "export_id"

	// Errors
	KeyError = "error"
)

// RequestID returns a slog.Attr for the request correlation id.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Method returns a slog.Attr for the HTTP method.
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for the request path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for the HTTP response status.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// WorkspaceID returns a slog.Attr for a workspace id.
func WorkspaceID(id string) slog.Attr {
	return slog.String(KeyWorkspaceID, id)
}

// FilePath returns a slog.Attr for a workspace-relative file path.
func FilePath(p string) slog.Attr {
	return slog.String(KeyFilePath, p)
}

// Author returns a slog.Attr for an agent author name.
func Author(a string) slog.Attr {
	return slog.String(KeyAuthor, a)
}

// Err returns a slog.Attr for an error value. A nil error yields an
// empty attr that slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
