package orchestration

import (
	"testing"
	"time"

	"github.com/marklog/marklog/pkg/models"
)

func task(id, author, priority string) *models.Append {
	return &models.Append{
		FileID:   "file_1",
		FilePath: "/tasks.md",
		AppendID: id,
		Author:   author,
		Type:     string(models.AppendTask),
		Priority: priority,
	}
}

func claim(id, ref, author, status string, expiresAt time.Time) *models.Append {
	return &models.Append{
		FileID:    "file_1",
		FilePath:  "/tasks.md",
		AppendID:  id,
		Author:    author,
		Type:      string(models.AppendClaim),
		Status:    status,
		Ref:       ref,
		ExpiresAt: &expiresAt,
	}
}

func event(id, ref string, typ models.AppendType) *models.Append {
	return &models.Append{
		FileID:   "file_1",
		FilePath: "/tasks.md",
		AppendID: id,
		Author:   "agent-x",
		Type:     string(typ),
		Ref:      ref,
	}
}

func TestFoldFile_TaskLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)

	tests := []struct {
		name       string
		appends    []*models.Append
		wantStatus models.TaskStatus
		wantBy     string
	}{
		{
			"task without claim is pending",
			[]*models.Append{task("a1", "alice", "")},
			models.TaskPending, "",
		},
		{
			"active claim makes task claimed",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusActive, future),
			},
			models.TaskClaimed, "bob",
		},
		{
			"lapsed lease makes task stalled",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusActive, past),
			},
			models.TaskStalled, "bob",
		},
		{
			"blocked claim makes task stalled",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusBlocked, future),
			},
			models.TaskStalled, "bob",
		},
		{
			"complete event finishes the task",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusActive, future),
				event("a3", "a1", models.AppendComplete),
			},
			models.TaskCompleted, "",
		},
		{
			"response event finishes the task",
			[]*models.Append{
				task("a1", "alice", ""),
				event("a2", "a1", models.AppendResponse),
			},
			models.TaskCompleted, "",
		},
		{
			"completed claim finishes the task",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusCompleted, future),
			},
			models.TaskCompleted, "",
		},
		{
			"cancelled claim returns the task to pending",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusCancelled, future),
			},
			models.TaskPending, "",
		},
		{
			"cancel targeting the task is terminal",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusActive, future),
				event("a3", "a1", models.AppendCancel),
			},
			models.TaskCancelled, "",
		},
		{
			"completion beats a later cancel",
			[]*models.Append{
				task("a1", "alice", ""),
				event("a2", "a1", models.AppendComplete),
				event("a3", "a1", models.AppendCancel),
			},
			models.TaskCompleted, "",
		},
		{
			"reclaim after cancelled claim governs",
			[]*models.Append{
				task("a1", "alice", ""),
				claim("a2", "a1", "bob", models.ClaimStatusCancelled, future),
				claim("a3", "a1", "carol", models.ClaimStatusActive, future),
			},
			models.TaskClaimed, "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := FoldFile(tt.appends, now)
			if len(state.Tasks) != 1 {
				t.Fatalf("got %d tasks, want 1", len(state.Tasks))
			}
			got := state.Tasks[0]
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", got.Status, tt.wantStatus)
			}
			if got.ClaimedBy != tt.wantBy {
				t.Errorf("ClaimedBy = %q, want %q", got.ClaimedBy, tt.wantBy)
			}
		})
	}
}

func TestFoldFile_ClaimViews(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	appends := []*models.Append{
		task("a1", "alice", ""),
		claim("a2", "a1", "bob", models.ClaimStatusActive, past),
		task("a3", "alice", ""),
		claim("a4", "a3", "carol", models.ClaimStatusActive, future),
	}

	state := FoldFile(appends, now)
	if len(state.Claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(state.Claims))
	}
	if !state.Claims[0].Stalled {
		t.Error("lapsed claim should report stalled")
	}
	if state.Claims[1].Stalled {
		t.Error("live claim must not report stalled")
	}
	if state.Claims[0].TaskID != "a1" || state.Claims[1].TaskID != "a3" {
		t.Errorf("claim refs = %q, %q", state.Claims[0].TaskID, state.Claims[1].TaskID)
	}
}

func TestFoldFile_IgnoresDanglingRefs(t *testing.T) {
	now := time.Now()
	appends := []*models.Append{
		claim("a1", "a99", "bob", models.ClaimStatusActive, now.Add(time.Minute)),
		event("a2", "a98", models.AppendComplete),
		task("a3", "alice", ""),
	}
	state := FoldFile(appends, now)
	if len(state.Tasks) != 1 || state.Tasks[0].Status != models.TaskPending {
		t.Fatalf("unexpected state: %+v", state.Tasks)
	}
	if len(state.Claims) != 0 {
		t.Errorf("dangling claim should not surface, got %d", len(state.Claims))
	}
}

func TestDeriveStatus_LatestGoverningClaimWins(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	ts := &taskState{
		task: task("a1", "alice", ""),
		claims: []*models.Append{
			claim("a2", "a1", "bob", models.ClaimStatusActive, past),
			claim("a3", "a1", "carol", models.ClaimStatusActive, future),
		},
	}
	if got := deriveStatus(ts, now); got != models.TaskClaimed {
		t.Errorf("status = %v, want claimed (latest claim governs)", got)
	}
}
