// Package models provides shared domain types for the marklog service.
//
// This package contains all data models used across the server, including
// workspaces, files, appends, credentials, webhooks, and audit records. It
// provides a single source of truth for domain types with GORM annotations
// for database persistence.
package models

import "time"

// TimeFormat renders timestamps as ISO-8601 UTC with millisecond
// precision, the wire format for every timestamp the API emits.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders a timestamp in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// FormatTimePtr renders an optional timestamp, returning "" when nil.
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// ParseTime accepts ISO-8601 timestamps with or without fractional
// seconds, as sent by clients in `since` filters.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Workspace{},
		&User{},
		&UserWorkspace{},
		&File{},
		&Folder{},
		&Append{},
		&Heartbeat{},
		&CapabilityKey{},
		&ApiKey{},
		&Webhook{},
		&WebhookDelivery{},
		&AuditLogEntry{},
		&ExportJob{},
	}
}
