package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// File is a Markdown document stored under a workspace. Content is opaque
// bytes up to the configured per-file limit.
//
// Soft delete sets DeletedAt; the row is purged by a background job after
// seven days. (WorkspaceID, Path) is unique among non-deleted files,
// enforced by a partial unique index the store creates at migration,
// since soft-deleted rows may share the path until purge. A new file
// created at a reused path gets a fresh id.
type File struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string     `gorm:"not null;size:64;index:idx_files_ws_path" json:"workspaceId"`
	Path        string     `gorm:"not null;size:1024;index:idx_files_ws_path" json:"path"`
	Content     string     `gorm:"type:text" json:"-"`
	ETag        string     `gorm:"column:etag;not null;size:16" json:"etag"`
	SizeBytes   int64      `gorm:"not null;default:0" json:"size"`
	AppendSeq   int        `gorm:"not null;default:0" json:"-"` // transactional append id counter
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt   *time.Time `gorm:"index" json:"deletedAt,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// IsDeleted reports whether the file has been soft-deleted.
func (f *File) IsDeleted() bool {
	return f.DeletedAt != nil
}

// ComputeETag returns the content fingerprint used for optimistic
// concurrency: the first 16 hex characters of SHA-256(content).
func ComputeETag(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
