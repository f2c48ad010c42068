package models

import "time"

// ExportStatus is the lifecycle of a workspace export job.
type ExportStatus string

const (
	ExportPending ExportStatus = "pending"
	ExportRunning ExportStatus = "running"
	ExportDone    ExportStatus = "done"
	ExportFailed  ExportStatus = "failed"
)

// IsValid checks if the status is a recognized value.
func (s ExportStatus) IsValid() bool {
	switch s {
	case ExportPending, ExportRunning, ExportDone, ExportFailed:
		return true
	}
	return false
}

// ExportJob is an asynchronous archive build of all non-deleted files in
// a workspace. A worker claims pending jobs, writes a zip to the artifact
// store and records the artifact reference for download.
type ExportJob struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	WorkspaceID string     `gorm:"not null;size:64;index" json:"workspaceId"`
	Status      string     `gorm:"not null;size:16;index" json:"status"` // pending, running, done, failed
	RequestedBy string     `gorm:"size:255" json:"requestedBy"`
	ArtifactRef string     `gorm:"size:1024" json:"-"`
	FileCount   int        `gorm:"default:0" json:"fileCount"`
	SizeBytes   int64      `gorm:"default:0" json:"sizeBytes"`
	Error       string     `gorm:"size:512" json:"error,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TableName returns the table name for ExportJob.
func (ExportJob) TableName() string {
	return "export_jobs"
}
