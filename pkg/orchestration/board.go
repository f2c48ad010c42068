package orchestration

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marklog/marklog/pkg/models"
)

// Board query limits.
const (
	MinLimit     = 1
	MaxLimit     = 1000
	DefaultLimit = 100
)

// Filters narrows the board to a subset of tasks. Zero values mean no
// filtering on that dimension.
type Filters struct {
	Statuses   []models.TaskStatus
	Priorities []models.TaskPriority
	Agent      string
	File       string // substring match on file path
	Folder     string // prefix match on file path
	Since      *time.Time
}

// ParseFilters validates raw query values into Filters. Unknown status or
// priority values are rejected so clients get INVALID_REQUEST rather than
// an empty board.
func ParseFilters(status, priority, agent, file, folder, since string) (Filters, error) {
	var f Filters
	for _, s := range splitCSV(status) {
		st := models.TaskStatus(s)
		if !st.IsValid() {
			return f, fmt.Errorf("unknown status value: %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, p := range splitCSV(priority) {
		pr := models.TaskPriority(p)
		if !pr.IsValid() {
			return f, fmt.Errorf("unknown priority value: %q", p)
		}
		f.Priorities = append(f.Priorities, pr)
	}
	f.Agent = agent
	f.File = file
	f.Folder = folder
	if since != "" {
		t, err := models.ParseTime(since)
		if err != nil {
			return f, fmt.Errorf("invalid since timestamp: %q", since)
		}
		f.Since = &t
	}
	return f, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (f Filters) matchTask(t TaskView) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, models.TaskPriority(t.Priority)) {
		return false
	}
	if f.Agent != "" && t.Author != f.Agent && t.ClaimedBy != f.Agent {
		return false
	}
	if f.File != "" && !strings.Contains(t.FilePath, f.File) {
		return false
	}
	if f.Folder != "" {
		prefix := strings.TrimSuffix(f.Folder, "/") + "/"
		if !strings.HasPrefix(t.FilePath, prefix) {
			return false
		}
	}
	return true
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []models.TaskPriority, p models.TaskPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

// cursor is the decoded pagination position: the sort tuple of the last
// returned task. Pagination is stable under tail inserts because new
// tasks sort after the cursor position.
type cursor struct {
	rank      int // priority rank, descending sort
	createdAt int64
	id        string
}

func encodeCursor(t TaskView) string {
	raw := fmt.Sprintf("%d|%d|%s", models.TaskPriority(t.Priority).Rank(), t.CreatedAt.UnixMilli(), t.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cursor")
	}
	rank, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &cursor{rank: rank, createdAt: ms, id: parts[2]}, nil
}

// after reports whether task t sorts strictly after the cursor position.
func (c *cursor) after(t TaskView) bool {
	rank := models.TaskPriority(t.Priority).Rank()
	if rank != c.rank {
		return rank < c.rank // higher rank sorts first
	}
	ms := t.CreatedAt.UnixMilli()
	if ms != c.createdAt {
		return ms > c.createdAt
	}
	return t.ID > c.id
}

// sortTasks orders tasks by (priority desc, createdAt asc, id asc).
func sortTasks(tasks []TaskView) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := models.TaskPriority(tasks[i].Priority).Rank(), models.TaskPriority(tasks[j].Priority).Rank()
		if ri != rj {
			return ri > rj
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Board computes the orchestration view for a scope.
//
// limit must be within [MinLimit, MaxLimit]; rawCursor is the opaque
// continuation token from a previous page, or "".
func (e *Engine) Board(ctx context.Context, workspaceID string, scope models.Scope, filters Filters, rawCursor string, limit int) (*Board, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < MinLimit || limit > MaxLimit {
		return nil, fmt.Errorf("limit must be between %d and %d", MinLimit, MaxLimit)
	}

	var cur *cursor
	if rawCursor != "" {
		var err error
		if cur, err = decodeCursor(rawCursor); err != nil {
			return nil, err
		}
	}

	state, _, err := e.foldScope(ctx, workspaceID, scope, filters.Since)
	if err != nil {
		return nil, err
	}

	board := &Board{Tasks: []TaskView{}, Claims: []ClaimView{}, Workload: []WorkloadEntry{}}

	// Summary counts the whole filtered set, not just the current page.
	filtered := make([]TaskView, 0, len(state.Tasks))
	for _, t := range state.Tasks {
		if !filters.matchTask(t) {
			continue
		}
		filtered = append(filtered, t)
		board.Summary.Total++
		switch t.Status {
		case models.TaskPending:
			board.Summary.Pending++
		case models.TaskClaimed:
			board.Summary.Claimed++
		case models.TaskStalled:
			board.Summary.Stalled++
		case models.TaskCompleted:
			board.Summary.Completed++
		case models.TaskCancelled:
			board.Summary.Cancelled++
		}
	}
	sortTasks(filtered)

	// Page the task list.
	pageStart := 0
	if cur != nil {
		for pageStart < len(filtered) && !cur.after(filtered[pageStart]) {
			pageStart++
		}
	}
	pageEnd := pageStart + limit
	if pageEnd > len(filtered) {
		pageEnd = len(filtered)
	}
	board.Tasks = filtered[pageStart:pageEnd]

	board.Pagination = Pagination{
		Limit:    limit,
		Returned: len(board.Tasks),
		HasMore:  pageEnd < len(filtered),
	}
	if board.Pagination.HasMore && len(board.Tasks) > 0 {
		board.Pagination.NextCursor = encodeCursor(board.Tasks[len(board.Tasks)-1])
	}

	// Claims sort by expiry, soonest first.
	now := e.now()
	for _, c := range state.Claims {
		if c.Status == models.ClaimStatusActive || c.Status == models.ClaimStatusBlocked {
			board.Claims = append(board.Claims, c)
		}
	}
	sort.SliceStable(board.Claims, func(i, j int) bool {
		return board.Claims[i].ExpiresAt.Before(board.Claims[j].ExpiresAt)
	})

	// Workload: active claims and completed tasks per agent.
	load := make(map[string]*WorkloadEntry)
	entry := func(agent string) *WorkloadEntry {
		if e, ok := load[agent]; ok {
			return e
		}
		e := &WorkloadEntry{Agent: agent}
		load[agent] = e
		return e
	}
	for _, c := range state.Claims {
		if c.Status == models.ClaimStatusActive && c.ExpiresAt.After(now) {
			entry(c.Author).ActiveClaims++
		}
	}
	for _, t := range state.Tasks {
		if t.Status == models.TaskCompleted && t.ClaimedBy != "" {
			entry(t.ClaimedBy).CompletedTasks++
		}
	}
	agents := make([]string, 0, len(load))
	for a := range load {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	for _, a := range agents {
		board.Workload = append(board.Workload, *load[a])
	}

	if board.Agents, err = e.Liveness(ctx, workspaceID); err != nil {
		return nil, err
	}
	return board, nil
}
