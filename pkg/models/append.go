package models

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"
)

// AppendType enumerates the event kinds an append log accepts.
type AppendType string

const (
	AppendTask      AppendType = "task"
	AppendClaim     AppendType = "claim"
	AppendResponse  AppendType = "response"
	AppendBlocked   AppendType = "blocked"
	AppendAnswer    AppendType = "answer"
	AppendRenew     AppendType = "renew"
	AppendCancel    AppendType = "cancel"
	AppendComplete  AppendType = "complete"
	AppendComment   AppendType = "comment"
	AppendVote      AppendType = "vote"
	AppendHeartbeat AppendType = "heartbeat"
)

// IsValid checks if the append type is a recognized value.
func (t AppendType) IsValid() bool {
	switch t {
	case AppendTask, AppendClaim, AppendResponse, AppendBlocked, AppendAnswer,
		AppendRenew, AppendCancel, AppendComplete, AppendComment, AppendVote,
		AppendHeartbeat:
		return true
	}
	return false
}

// TaskPriority orders tasks on the orchestration board.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Rank returns the sort weight of the priority. Higher ranks sort first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValid checks if the priority is a recognized value.
func (p TaskPriority) IsValid() bool {
	return p.Rank() > 0
}

// TaskStatus is the derived lifecycle state of a task. Only claim rows
// store a status column; task state is computed from the log at query time.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskClaimed   TaskStatus = "claimed"
	TaskStalled   TaskStatus = "stalled"
	TaskCompleted TaskStatus = "completed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsValid checks if the status is a recognized value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskClaimed, TaskStalled, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the task lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Claim status values stored on claim appends. Stalledness is never
// stored; an expired claim keeps status "active" and is reported stalled
// by the derivation layer.
const (
	ClaimStatusActive    = "active"
	ClaimStatusCompleted = "completed"
	ClaimStatusCancelled = "cancelled"
	ClaimStatusBlocked   = "blocked"
)

// ReservedAuthor cannot be used by clients; it is reserved for events the
// service emits itself.
const ReservedAuthor = "system"

var authorPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateAuthor enforces the author naming rule: 1-64 chars of
// [A-Za-z0-9_-], and never the reserved "system".
func ValidateAuthor(author string) error {
	if !authorPattern.MatchString(author) {
		return ErrInvalidAuthor
	}
	if author == ReservedAuthor {
		return ErrInvalidAuthor
	}
	return nil
}

// IsValidVoteValue checks a vote append's value.
func IsValidVoteValue(v string) bool {
	return v == "+1" || v == "-1"
}

// Append is one immutable event in a file's activity log. Rows are only
// ever inserted; the single exception is the status column of claim rows,
// which later renew/cancel/complete/block appends transition.
//
// The row id is FileID + "_" + AppendID where AppendID is the short local
// id ("a1", "a2", ...) assigned from the file's transactional counter.
// WorkspaceID and FilePath are denormalized for scope-filtered scans.
type Append struct {
	ID             string     `gorm:"primaryKey;size:128" json:"-"`
	FileID         string     `gorm:"not null;size:64;uniqueIndex:idx_appends_file_seq" json:"fileId"`
	Seq            int        `gorm:"not null;uniqueIndex:idx_appends_file_seq" json:"-"`
	AppendID       string     `gorm:"not null;size:16" json:"id"` // "a1", "a2", ...
	WorkspaceID    string     `gorm:"not null;size:64;index" json:"-"`
	FilePath       string     `gorm:"not null;size:1024" json:"filePath"` // denormalized for scope filters
	Author         string     `gorm:"not null;size:64;index" json:"author"`
	Type           string     `gorm:"not null;size:16;index" json:"type"`
	Status         string     `gorm:"size:16" json:"status,omitempty"`
	Priority       string     `gorm:"size:16" json:"priority,omitempty"` // task only
	Ref            string     `gorm:"size:16;index" json:"ref,omitempty"`
	Labels         string     `gorm:"type:text" json:"-"` // JSON array of strings
	Value          string     `gorm:"size:4" json:"value,omitempty"`
	ContentPreview string     `gorm:"size:256" json:"contentPreview,omitempty"`
	Content        string     `gorm:"type:text" json:"content,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"` // claim only
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`

	// Parsed labels (not stored in DB)
	ParsedLabels []string `gorm:"-" json:"labels,omitempty"`
}

// TableName returns the table name for Append.
func (Append) TableName() string {
	return "appends"
}

// LocalAppendID builds the short per-file id for a sequence number.
func LocalAppendID(seq int) string {
	return "a" + strconv.Itoa(seq)
}

// AppendRowID builds the global row id for an append.
func AppendRowID(fileID string, seq int) string {
	return fileID + "_" + LocalAppendID(seq)
}

// GetLabels returns the parsed label list.
func (a *Append) GetLabels() ([]string, error) {
	if a.ParsedLabels != nil {
		return a.ParsedLabels, nil
	}
	if a.Labels == "" {
		return []string{}, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(a.Labels), &labels); err != nil {
		return nil, err
	}
	a.ParsedLabels = labels
	return labels, nil
}

// SetLabels stores the label list.
func (a *Append) SetLabels(labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	a.Labels = string(data)
	a.ParsedLabels = labels
	return nil
}

// IsActiveClaim reports whether the append is a claim that is still live:
// stored status "active" and expiry in the future.
func (a *Append) IsActiveClaim(now time.Time) bool {
	return AppendType(a.Type) == AppendClaim &&
		a.Status == ClaimStatusActive &&
		a.ExpiresAt != nil && a.ExpiresAt.After(now)
}

// IsExpiredClaim reports whether the append is a claim whose lease ran out
// without a terminal transition.
func (a *Append) IsExpiredClaim(now time.Time) bool {
	return AppendType(a.Type) == AppendClaim &&
		a.Status == ClaimStatusActive &&
		a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

const maxPreviewRunes = 100

// BuildContentPreview derives the stored preview from append content.
func BuildContentPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= maxPreviewRunes {
		return content
	}
	return string(runes[:maxPreviewRunes])
}
