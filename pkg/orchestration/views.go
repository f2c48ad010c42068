package orchestration

import (
	"time"

	"github.com/marklog/marklog/pkg/models"
)

// Summary counts tasks by derived status across the queried scope.
type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Stalled   int `json:"stalled"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// TaskView is one task row on the orchestration board.
type TaskView struct {
	ID             string            `json:"id"`
	FileID         string            `json:"-"`
	FilePath       string            `json:"file"`
	Author         string            `json:"author"`
	Status         models.TaskStatus `json:"status"`
	Priority       string            `json:"priority,omitempty"`
	Labels         []string          `json:"labels,omitempty"`
	ContentPreview string            `json:"contentPreview,omitempty"`
	ClaimedBy      string            `json:"claimedBy,omitempty"`
	ClaimID        string            `json:"claimId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ClaimView is one live or lapsed claim on the board.
type ClaimView struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	FileID    string    `json:"-"`
	FilePath  string    `json:"file"`
	Author    string    `json:"author"`
	Status    string    `json:"status"`
	Stalled   bool      `json:"stalled"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// AgentView reports one agent's liveness, merged from heartbeats and
// append activity.
type AgentView struct {
	Author      string `json:"author"`
	Status      string `json:"status"`
	CurrentTask string `json:"currentTask,omitempty"`
	LastSeen    int64  `json:"lastSeen,omitempty"`
	Stale       bool   `json:"stale"`
}

// WorkloadEntry is the per-agent load line of the board.
type WorkloadEntry struct {
	Agent          string `json:"agent"`
	ActiveClaims   int    `json:"activeClaims"`
	CompletedTasks int    `json:"completedTasks"`
}

// Pagination carries the opaque continuation cursor.
type Pagination struct {
	Limit      int    `json:"limit"`
	Returned   int    `json:"returned"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Board is the full orchestration view for a scope.
type Board struct {
	Summary    Summary         `json:"summary"`
	Tasks      []TaskView      `json:"tasks"`
	Claims     []ClaimView     `json:"claims"`
	Agents     []AgentView     `json:"agents"`
	Workload   []WorkloadEntry `json:"workload"`
	Pagination Pagination      `json:"pagination"`
}

// Stats is the lightweight activity summary for a scope.
type Stats struct {
	Files           int64      `json:"files"`
	Appends         int        `json:"appends"`
	Tasks           int        `json:"tasks"`
	Claims          int        `json:"claims"`
	Agents          int        `json:"agents"`
	LastAppendAt    *time.Time `json:"lastAppendAt,omitempty"`
	AppendsToday    int        `json:"appendsToday"`
	AppendsThisWeek int        `json:"appendsThisWeek"`
}
