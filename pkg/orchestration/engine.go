package orchestration

import (
	"context"
	"time"

	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/store"
)

// heartbeatStaleAfter is how long after its last beat an agent is
// reported stale.
const heartbeatStaleAfter = 2 * time.Minute

// Engine computes derived orchestration state. It is stateless apart
// from its store handle; every query folds the log fresh.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// New creates an orchestration engine over the given store.
func New(st store.Store) *Engine {
	return &Engine{store: st, now: time.Now}
}

// taskState is the per-task accumulator of the fold.
type taskState struct {
	task      *models.Append
	claims    []*models.Append // claim appends targeting this task, log order
	completed bool             // complete/response targeting the task
	cancelled bool             // cancel targeting the task (terminal)
}

// FileState is the derived state of one file's log.
type FileState struct {
	Tasks  []TaskView
	Claims []ClaimView
}

// FoldFile derives task and claim state from one file's appends, which
// must be in log order. The fold never mutates its input.
func FoldFile(appends []*models.Append, now time.Time) *FileState {
	tasks := make(map[string]*taskState)
	var order []string

	for _, a := range appends {
		switch models.AppendType(a.Type) {
		case models.AppendTask:
			tasks[a.AppendID] = &taskState{task: a}
			order = append(order, a.AppendID)
		case models.AppendClaim:
			if ts, ok := tasks[a.Ref]; ok {
				ts.claims = append(ts.claims, a)
			}
		case models.AppendComplete, models.AppendResponse:
			if ts, ok := tasks[a.Ref]; ok {
				ts.completed = true
			}
		case models.AppendCancel:
			// Cancel targeting the task is terminal. Cancel targeting a
			// claim already transitioned the stored claim status and the
			// task falls back to pending.
			if ts, ok := tasks[a.Ref]; ok {
				ts.cancelled = true
			}
		}
	}

	state := &FileState{}
	for _, id := range order {
		ts := tasks[id]
		view := buildTaskView(ts, now)
		state.Tasks = append(state.Tasks, view)

		for _, c := range ts.claims {
			state.Claims = append(state.Claims, claimView(c, now))
		}
	}
	return state
}

// buildTaskView runs the task state machine for a single task.
func buildTaskView(ts *taskState, now time.Time) TaskView {
	a := ts.task
	labels, _ := a.GetLabels()
	view := TaskView{
		ID:             a.AppendID,
		FileID:         a.FileID,
		FilePath:       a.FilePath,
		Author:         a.Author,
		Priority:       a.Priority,
		Labels:         labels,
		ContentPreview: a.ContentPreview,
		CreatedAt:      a.CreatedAt,
	}

	view.Status = deriveStatus(ts, now)

	// Attach the governing claim for claimed/stalled tasks.
	if view.Status == models.TaskClaimed || view.Status == models.TaskStalled {
		if c := governingClaim(ts.claims); c != nil {
			view.ClaimedBy = c.Author
			view.ClaimID = c.AppendID
		}
	}
	return view
}

// deriveStatus implements the task lifecycle:
//
//	pending  -> claimed   (active unexpired claim)
//	claimed  -> stalled   (claim expiry passed, or claim blocked)
//	claimed  -> completed (complete/response on task, or claim completed)
//	any      -> cancelled (cancel targeting the task; terminal)
//
// A cancelled claim returns the task to pending.
func deriveStatus(ts *taskState, now time.Time) models.TaskStatus {
	if ts.completed {
		return models.TaskCompleted
	}
	if ts.cancelled {
		return models.TaskCancelled
	}
	for _, c := range ts.claims {
		if c.Status == models.ClaimStatusCompleted {
			return models.TaskCompleted
		}
	}
	if c := governingClaim(ts.claims); c != nil {
		switch {
		case c.Status == models.ClaimStatusBlocked:
			return models.TaskStalled
		case c.IsActiveClaim(now):
			return models.TaskClaimed
		default:
			// Stored status is still "active" but the lease lapsed.
			return models.TaskStalled
		}
	}
	return models.TaskPending
}

// governingClaim returns the most recent claim that still governs the
// task: the latest active (live or lapsed) or blocked claim. Cancelled
// claims release the task and never govern.
func governingClaim(claims []*models.Append) *models.Append {
	for i := len(claims) - 1; i >= 0; i-- {
		c := claims[i]
		if c.Status == models.ClaimStatusActive || c.Status == models.ClaimStatusBlocked {
			return c
		}
	}
	return nil
}

func claimView(c *models.Append, now time.Time) ClaimView {
	view := ClaimView{
		ID:        c.AppendID,
		TaskID:    c.Ref,
		FileID:    c.FileID,
		FilePath:  c.FilePath,
		Author:    c.Author,
		Status:    c.Status,
		Stalled:   c.IsExpiredClaim(now),
		CreatedAt: c.CreatedAt,
	}
	if c.ExpiresAt != nil {
		view.ExpiresAt = *c.ExpiresAt
	}
	return view
}

// foldScope loads and folds every file log in the scope.
func (e *Engine) foldScope(ctx context.Context, workspaceID string, scope models.Scope, since *time.Time) (*FileState, []*models.Append, error) {
	appends, err := e.store.ListAppendsByWorkspace(ctx, workspaceID, scope, nil)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()

	merged := &FileState{}
	start := 0
	for i := 1; i <= len(appends); i++ {
		if i == len(appends) || appends[i].FileID != appends[start].FileID {
			fs := FoldFile(appends[start:i], now)
			merged.Tasks = append(merged.Tasks, fs.Tasks...)
			merged.Claims = append(merged.Claims, fs.Claims...)
			start = i
		}
	}

	// The since filter applies to reported rows, not to the fold itself:
	// derivation always sees the full log.
	if since != nil {
		merged.Tasks = filterTasksSince(merged.Tasks, *since)
	}
	return merged, appends, nil
}

func filterTasksSince(tasks []TaskView, since time.Time) []TaskView {
	out := tasks[:0]
	for _, t := range tasks {
		if !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

// Stats summarizes activity in a scope.
func (e *Engine) Stats(ctx context.Context, workspaceID string, scope models.Scope) (*Stats, error) {
	folder := scope.Path
	if scope.Type == models.ScopeWorkspace {
		folder = "/"
	}

	var files int64
	var err error
	if scope.Type == models.ScopeFile {
		files = 1
	} else if files, err = e.store.CountFilesUnder(ctx, workspaceID, folder); err != nil {
		return nil, err
	}

	appends, err := e.store.ListAppendsByWorkspace(ctx, workspaceID, scope, nil)
	if err != nil {
		return nil, err
	}

	now := e.now()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	stats := &Stats{Files: files, Appends: len(appends)}
	agents := make(map[string]struct{})
	for _, a := range appends {
		switch models.AppendType(a.Type) {
		case models.AppendTask:
			stats.Tasks++
		case models.AppendClaim:
			stats.Claims++
		}
		agents[a.Author] = struct{}{}
		if stats.LastAppendAt == nil || a.CreatedAt.After(*stats.LastAppendAt) {
			t := a.CreatedAt
			stats.LastAppendAt = &t
		}
		if a.CreatedAt.After(dayAgo) {
			stats.AppendsToday++
		}
		if a.CreatedAt.After(weekAgo) {
			stats.AppendsThisWeek++
		}
	}
	stats.Agents = len(agents)
	return stats, nil
}

// Liveness returns agent heartbeat state for a workspace.
func (e *Engine) Liveness(ctx context.Context, workspaceID string) ([]AgentView, error) {
	beats, err := e.store.ListHeartbeats(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	agents := make([]AgentView, 0, len(beats))
	for _, hb := range beats {
		agents = append(agents, AgentView{
			Author:      hb.Author,
			Status:      hb.Status,
			CurrentTask: hb.CurrentTask,
			LastSeen:    hb.LastSeen,
			Stale:       now.Unix()-hb.LastSeen > int64(heartbeatStaleAfter.Seconds()),
		})
	}
	return agents, nil
}
