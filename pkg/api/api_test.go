package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marklog/marklog/pkg/audit"
	"github.com/marklog/marklog/pkg/auth"
	"github.com/marklog/marklog/pkg/capability"
	"github.com/marklog/marklog/pkg/export"
	"github.com/marklog/marklog/pkg/models"
	"github.com/marklog/marklog/pkg/orchestration"
	"github.com/marklog/marklog/pkg/ratelimit"
	"github.com/marklog/marklog/pkg/store"
	"github.com/marklog/marklog/pkg/webhook"
)

// envelope mirrors the wire response shape.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Pagination json.RawMessage `json:"pagination"`
}

type testEnv struct {
	router   http.Handler
	store    *store.GORMStore
	resolver *capability.Resolver
	sessions *auth.Service
}

func newTestEnv(t *testing.T, mutate func(*APIConfig)) *testEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sessions, err := auth.NewService(auth.Config{Secret: strings.Repeat("s", 32)})
	if err != nil {
		t.Fatalf("failed to create session service: %v", err)
	}

	recorder := audit.NewRecorder(st, nil)
	t.Cleanup(recorder.Close)

	limits := ratelimit.NewSet(nil)
	t.Cleanup(limits.Close)

	cfg := APIConfig{
		BootstrapEnabled: true,
		AdminSecret:      "test-admin-secret",
	}
	cfg.applyDefaults()
	if mutate != nil {
		mutate(&cfg)
	}

	resolver := capability.NewResolver(st)
	router := NewRouter(cfg, Options{
		Store:    st,
		Resolver: resolver,
		Sessions: sessions,
		Engine:   orchestration.New(st),
		Emitter:  webhook.NewEmitter(st),
		Policy:   webhook.NewPolicy(nil),
		Exports:  export.NewService(st, export.NewMemoryStore()),
		Audit:    recorder,
		Limits:   limits,
	})

	return &testEnv{router: router, store: st, resolver: resolver, sessions: sessions}
}

// do executes a request against the router and decodes the envelope when
// the response carries one.
func (e *testEnv) do(t *testing.T, method, target string, body any, mod func(*http.Request)) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mod != nil {
		mod(req)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	env := &envelope{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), env); err != nil {
			t.Fatalf("failed to decode response envelope: %v (body: %s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func decodeData(t *testing.T, env *envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("failed to decode data: %v (data: %s)", err, env.Data)
	}
}

type workspaceKeys struct {
	WorkspaceID string
	ReadKey     string
	AppendKey   string
	WriteKey    string
}

func (e *testEnv) bootstrap(t *testing.T) workspaceKeys {
	t.Helper()

	rec, env := e.do(t, http.MethodPost, "/bootstrap", map[string]string{"name": "Test workspace"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("bootstrap status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var data struct {
		Workspace struct {
			ID string `json:"id"`
		} `json:"workspace"`
		ReadKey   string `json:"readKey"`
		AppendKey string `json:"appendKey"`
		WriteKey  string `json:"writeKey"`
	}
	decodeData(t, env, &data)
	if data.Workspace.ID == "" || data.ReadKey == "" || data.AppendKey == "" || data.WriteKey == "" {
		t.Fatalf("bootstrap returned incomplete keys: %+v", data)
	}
	return workspaceKeys{
		WorkspaceID: data.Workspace.ID,
		ReadKey:     data.ReadKey,
		AppendKey:   data.AppendKey,
		WriteKey:    data.WriteKey,
	}
}

type appendData struct {
	AppendID  string `json:"appendId"`
	FilePath  string `json:"filePath"`
	Type      string `json:"type"`
	Author    string `json:"author"`
	Status    string `json:"status"`
	Ref       string `json:"ref"`
	ExpiresAt string `json:"expiresAt"`
}

func (e *testEnv) appendTask(t *testing.T, key, file, author, content string) appendData {
	t.Helper()

	rec, env := e.do(t, http.MethodPost, "/a/"+key+"/"+file+"/append", map[string]any{
		"type":    "task",
		"author":  author,
		"content": content,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append task status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var data appendData
	decodeData(t, env, &data)
	if data.AppendID == "" {
		t.Fatal("append task returned empty appendId")
	}
	return data
}

// sessionCookie mints a session token for a synthetic user and returns a
// request modifier that attaches it.
func (e *testEnv) sessionCookie(t *testing.T, userID, email string) func(*http.Request) {
	t.Helper()

	token, err := e.sessions.Mint(&models.User{ID: userID, Email: email, Name: "Test User"})
	if err != nil {
		t.Fatalf("failed to mint session token: %v", err)
	}
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	}
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestBootstrapAppendOrchestration(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	task := e.appendTask(t, keys.AppendKey, "tasks.md", "planner", "Build the search index")
	if task.Type != "task" {
		t.Errorf("append type = %q, want %q", task.Type, "task")
	}

	rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/orchestration", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("orchestration status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var board struct {
		Summary struct {
			Total   int `json:"total"`
			Pending int `json:"pending"`
		} `json:"summary"`
		Tasks []struct {
			ID     string `json:"id"`
			File   string `json:"file"`
			Author string `json:"author"`
			Status string `json:"status"`
		} `json:"tasks"`
	}
	decodeData(t, env, &board)

	if board.Summary.Pending != 1 {
		t.Errorf("summary.pending = %d, want 1", board.Summary.Pending)
	}
	if len(board.Tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(board.Tasks))
	}
	if board.Tasks[0].ID != task.AppendID {
		t.Errorf("tasks[0].id = %q, want %q", board.Tasks[0].ID, task.AppendID)
	}
	if board.Tasks[0].Author != "planner" {
		t.Errorf("tasks[0].author = %q, want %q", board.Tasks[0].Author, "planner")
	}
}

func TestBootstrapKeysCarryRootScopePath(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	stored, err := e.store.ListCapabilityKeys(context.Background(), keys.WorkspaceID)
	if err != nil {
		t.Fatalf("ListCapabilityKeys failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d keys, want 3", len(stored))
	}
	for _, k := range stored {
		if k.ScopeType != string(models.ScopeWorkspace) {
			t.Errorf("key %s scopeType = %q, want workspace", k.ID, k.ScopeType)
		}
		if k.ScopePath != "/" {
			t.Errorf("key %s scopePath = %q, want /", k.ID, k.ScopePath)
		}
	}
}

func TestClaimRaceSingleWinner(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	task := e.appendTask(t, keys.AppendKey, "tasks.md", "planner", "Migrate the database")

	claim := func(author string) (*httptest.ResponseRecorder, *envelope) {
		return e.do(t, http.MethodPost, "/a/"+keys.AppendKey+"/tasks.md/append", map[string]any{
			"type":   "claim",
			"author": author,
			"ref":    task.AppendID,
		}, nil)
	}

	rec, env := claim("agent-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first claim status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var first appendData
	decodeData(t, env, &first)
	if first.Status != "active" {
		t.Errorf("first claim status = %q, want %q", first.Status, "active")
	}
	if first.ExpiresAt == "" {
		t.Error("first claim has no expiresAt")
	}

	rec, env = claim("agent-2")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second claim status = %d, want %d (body: %s)", rec.Code, http.StatusConflict, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "CONFLICT" {
		t.Errorf("second claim error = %+v, want code CONFLICT", env.Error)
	}
}

func TestPutFileETagConcurrency(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	rec, env := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/notes.md",
		map[string]string{"content": "v1"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("initial put status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var v1 struct {
		ETag string `json:"etag"`
	}
	decodeData(t, env, &v1)
	if v1.ETag == "" {
		t.Fatal("initial put returned empty etag")
	}
	if got := rec.Header().Get("ETag"); got != v1.ETag {
		t.Errorf("ETag header = %q, want %q", got, v1.ETag)
	}

	withIfMatch := func(etag string) func(*http.Request) {
		return func(r *http.Request) {
			r.Header.Set("If-Match", `"`+etag+`"`)
		}
	}

	rec, env = e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/notes.md",
		map[string]string{"content": "v2"}, withIfMatch(v1.ETag))
	if rec.Code != http.StatusOK {
		t.Fatalf("conditional put status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var v2 struct {
		ETag string `json:"etag"`
	}
	decodeData(t, env, &v2)
	if v2.ETag == v1.ETag {
		t.Error("etag did not change after update")
	}

	// Replay the first precondition: the writer lost the race.
	rec, env = e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/notes.md",
		map[string]string{"content": "v3"}, withIfMatch(v1.ETag))
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("stale put status = %d, want %d (body: %s)", rec.Code, http.StatusPreconditionFailed, rec.Body.String())
	}
	if env.Error == nil {
		t.Fatal("stale put returned no error envelope")
	}
	if env.Error.Code != "CONFLICT" {
		t.Errorf("stale put code = %q, want CONFLICT", env.Error.Code)
	}
	if env.Error.Message != "File was modified since last read" {
		t.Errorf("stale put message = %q", env.Error.Message)
	}
	if got := env.Error.Details["providedEtag"]; got != v1.ETag {
		t.Errorf("details.providedEtag = %v, want %q", got, v1.ETag)
	}
	if got := env.Error.Details["currentEtag"]; got != v2.ETag {
		t.Errorf("details.currentEtag = %v, want %q", got, v2.ETag)
	}
}

// TestClaimRaceParallelSingleWinner fires concurrent claimers at one
// task and requires exactly one to win.
func TestClaimRaceParallelSingleWinner(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	task := e.appendTask(t, keys.AppendKey, "tasks.md", "planner", "Rebuild the search index")

	const claimers = 8
	recs := make([]*httptest.ResponseRecorder, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, err := json.Marshal(map[string]any{
				"type":   "claim",
				"author": fmt.Sprintf("agent-%d", n),
				"ref":    task.AppendID,
			})
			if err != nil {
				t.Errorf("claimer %d: failed to marshal body: %v", n, err)
				return
			}
			req := httptest.NewRequest(http.MethodPost, "/a/"+keys.AppendKey+"/tasks.md/append", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			recs[n] = rec
		}(i)
	}
	wg.Wait()

	var winners, conflicts int
	for n, rec := range recs {
		switch rec.Code {
		case http.StatusCreated:
			winners++
		case http.StatusConflict:
			conflicts++
		default:
			t.Errorf("claimer %d status = %d, want %d or %d (body: %s)",
				n, rec.Code, http.StatusCreated, http.StatusConflict, rec.Body.String())
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if conflicts != claimers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, claimers-1)
	}
}

// TestPutFileParallelConditionalSingleWinner races concurrent writers
// holding the same If-Match precondition; exactly one write lands and
// the stored etag is the winner's.
func TestPutFileParallelConditionalSingleWinner(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	rec, env := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/notes.md",
		map[string]string{"content": "v1"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("initial put status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var v1 struct {
		ETag string `json:"etag"`
	}
	decodeData(t, env, &v1)

	const writers = 8
	recs := make([]*httptest.ResponseRecorder, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, err := json.Marshal(map[string]string{"content": fmt.Sprintf("rev-%d", n)})
			if err != nil {
				t.Errorf("writer %d: failed to marshal body: %v", n, err)
				return
			}
			req := httptest.NewRequest(http.MethodPut, "/w/"+keys.WriteKey+"/notes.md", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("If-Match", `"`+v1.ETag+`"`)
			rec := httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			recs[n] = rec
		}(i)
	}
	wg.Wait()

	var winners, stale int
	winnerETag := ""
	for n, rec := range recs {
		switch rec.Code {
		case http.StatusOK:
			winners++
			var winEnv envelope
			if err := json.Unmarshal(rec.Body.Bytes(), &winEnv); err != nil {
				t.Fatalf("writer %d: failed to decode envelope: %v", n, err)
			}
			var data struct {
				ETag string `json:"etag"`
			}
			decodeData(t, &winEnv, &data)
			winnerETag = data.ETag
		case http.StatusPreconditionFailed:
			stale++
		default:
			t.Errorf("writer %d status = %d, want %d or %d (body: %s)",
				n, rec.Code, http.StatusOK, http.StatusPreconditionFailed, rec.Body.String())
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if stale != writers-1 {
		t.Errorf("stale writers = %d, want %d", stale, writers-1)
	}

	rec, _ = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/notes.md", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("ETag"); got != winnerETag {
		t.Errorf("stored ETag = %q, want winner's %q", got, winnerETag)
	}
}

func TestCapabilityFailuresRenderNotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	t.Run("unknown key", func(t *testing.T) {
		rec, env := e.do(t, http.MethodGet, "/r/mk_bogus_key/notes.md", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if env.Error == nil || env.Error.Code != "INVALID_KEY" {
			t.Errorf("error = %+v, want code INVALID_KEY", env.Error)
		}
		if env.Error != nil && env.Error.Message != "Not found" {
			t.Errorf("message = %q, want %q", env.Error.Message, "Not found")
		}
	})

	t.Run("revoked key", func(t *testing.T) {
		ctx := context.Background()
		ks, err := e.store.ListCapabilityKeys(ctx, keys.WorkspaceID)
		if err != nil {
			t.Fatalf("ListCapabilityKeys() error = %v", err)
		}
		for _, k := range ks {
			if k.Permission == string(models.PermissionRead) {
				if err := e.store.RevokeCapabilityKey(ctx, keys.WorkspaceID, k.ID, time.Now()); err != nil {
					t.Fatalf("RevokeCapabilityKey() error = %v", err)
				}
			}
		}
		e.resolver.InvalidateWorkspace(keys.WorkspaceID)

		rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/notes.md", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if env.Error == nil || env.Error.Code != "KEY_REVOKED" {
			t.Errorf("error = %+v, want code KEY_REVOKED", env.Error)
		}
	})

	t.Run("append key cannot write", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPut, "/a/"+keys.AppendKey+"/notes.md",
			map[string]string{"content": "nope"}, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusNotFound, rec.Body.String())
		}
		if env.Error == nil || env.Error.Code != "PERMISSION_DENIED" {
			t.Errorf("error = %+v, want code PERMISSION_DENIED", env.Error)
		}
		if env.Error != nil && env.Error.Message != "Not found" {
			t.Errorf("message = %q, want %q", env.Error.Message, "Not found")
		}
	})

	t.Run("read key rejected at write mount", func(t *testing.T) {
		// The read key was revoked above; use a fresh workspace.
		fresh := e.bootstrap(t)
		rec, env := e.do(t, http.MethodPut, "/w/"+fresh.ReadKey+"/notes.md",
			map[string]string{"content": "nope"}, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if env.Error == nil || env.Error.Code != "PERMISSION_DENIED" {
			t.Errorf("error = %+v, want code PERMISSION_DENIED", env.Error)
		}
	})
}

func TestWebhookTargetValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)
	cookie := e.sessionCookie(t, "user_hooks", "hooks@example.com")

	rec, _ := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/claim", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("workspace claim status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	base := "/workspaces/" + keys.WorkspaceID + "/webhooks"

	t.Run("metadata endpoint rejected", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, base,
			map[string]any{"url": "http://169.254.169.254/latest/meta-data"}, cookie)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
		if env.Error == nil || env.Error.Code != "INVALID_WEBHOOK_URL" {
			t.Errorf("error = %+v, want code INVALID_WEBHOOK_URL", env.Error)
		}
	})

	t.Run("loopback rejected", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, base,
			map[string]any{"url": "https://127.0.0.1:8443/hook"}, cookie)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if env.Error == nil || env.Error.Code != "INVALID_WEBHOOK_URL" {
			t.Errorf("error = %+v, want code INVALID_WEBHOOK_URL", env.Error)
		}
	})

	t.Run("public address accepted", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, base,
			map[string]any{"url": "https://203.0.113.10/hook"}, cookie)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var data struct {
			ID     string `json:"id"`
			Secret string `json:"secret"`
			Status string `json:"status"`
		}
		decodeData(t, env, &data)
		if data.Secret == "" {
			t.Error("webhook creation did not return the signing secret")
		}
		if data.Status != "active" {
			t.Errorf("webhook status = %q, want %q", data.Status, "active")
		}
	})
}

func TestWorkspaceQuota(t *testing.T) {
	e := newTestEnv(t, func(cfg *APIConfig) {
		cfg.QuotaBytes = 1024
	})
	keys := e.bootstrap(t)

	rec, _ := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/a.md",
		map[string]string{"content": strings.Repeat("x", 600)}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first put status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	rec, env := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/b.md",
		map[string]string{"content": strings.Repeat("y", 600)}, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("second put status = %d, want %d (body: %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "QUOTA_EXCEEDED" {
		t.Fatalf("error = %+v, want code QUOTA_EXCEEDED", env.Error)
	}
	if !strings.Contains(strings.ToLower(env.Error.Message), "quota") {
		t.Errorf("message = %q, want it to mention the quota", env.Error.Message)
	}
}

func TestFileSizeLimit(t *testing.T) {
	e := newTestEnv(t, func(cfg *APIConfig) {
		cfg.FileSizeLimit = 1 << 10
		cfg.BodyLimit = 1 << 20
	})
	keys := e.bootstrap(t)

	rec, env := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/big.md",
		map[string]string{"content": strings.Repeat("z", (1<<10)+1)}, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "PAYLOAD_TOO_LARGE" {
		t.Errorf("error = %+v, want code PAYLOAD_TOO_LARGE", env.Error)
	}
	if got := rec.Header().Get("X-Content-Size-Limit"); got != "1024" {
		t.Errorf("X-Content-Size-Limit = %q, want %q", got, "1024")
	}
}

func TestPathTraversalRejected(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/..%2F..%2Fetc%2Fpasswd", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "INVALID_PATH" {
		t.Fatalf("error = %+v, want code INVALID_PATH", env.Error)
	}
	if env.Error.Message != "Path traversal" {
		t.Errorf("message = %q, want %q", env.Error.Message, "Path traversal")
	}
	if strings.Contains(rec.Body.String(), "passwd") {
		t.Error("response echoes the offending path")
	}
}

func TestRequestValidationBoundaries(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		wantCode string
	}{
		{
			name:     "orchestration limit zero",
			method:   http.MethodGet,
			target:   "/r/" + keys.ReadKey + "/orchestration?limit=0",
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "orchestration limit above maximum",
			method:   http.MethodGet,
			target:   "/r/" + keys.ReadKey + "/orchestration?limit=1001",
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "folder name too long",
			method:   http.MethodPost,
			target:   "/w/" + keys.WriteKey + "/folders",
			body:     map[string]string{"name": strings.Repeat("d", 256)},
			wantCode: "INVALID_REQUEST",
		},
		{
			name:     "folder name with separator",
			method:   http.MethodPost,
			target:   "/w/" + keys.WriteKey + "/folders",
			body:     map[string]string{"name": "a/b"},
			wantCode: "INVALID_REQUEST",
		},
		{
			name:   "author too long",
			method: http.MethodPost,
			target: "/a/" + keys.AppendKey + "/tasks.md/append",
			body: map[string]any{
				"type":    "task",
				"author":  strings.Repeat("a", 65),
				"content": "x",
			},
			wantCode: "INVALID_AUTHOR",
		},
		{
			name:   "reserved author",
			method: http.MethodPost,
			target: "/a/" + keys.AppendKey + "/tasks.md/append",
			body: map[string]any{
				"type":    "task",
				"author":  "system",
				"content": "x",
			},
			wantCode: "INVALID_AUTHOR",
		},
		{
			name:   "claim without ref",
			method: http.MethodPost,
			target: "/a/" + keys.AppendKey + "/tasks.md/append",
			body: map[string]any{
				"type":   "claim",
				"author": "agent-1",
			},
			wantCode: "INVALID_REQUEST",
		},
		{
			name:   "claim TTL above maximum",
			method: http.MethodPost,
			target: "/a/" + keys.AppendKey + "/tasks.md/append",
			body: map[string]any{
				"type":             "claim",
				"author":           "agent-1",
				"ref":              "does-not-matter",
				"expiresInSeconds": 86401,
			},
			wantCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := e.do(t, tt.method, tt.target, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestFileDeleteLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	rec, _ := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/doc.md",
		map[string]string{"content": "hello"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("put status = %d, want %d", rec.Code, http.StatusCreated)
	}

	rec, _ = e.do(t, http.MethodDelete, "/w/"+keys.WriteKey+"/doc.md", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("soft delete status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/doc.md", nil, nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("get after soft delete status = %d, want %d", rec.Code, http.StatusGone)
	}
	if env.Error == nil || env.Error.Code != "GONE" {
		t.Errorf("error = %+v, want code GONE", env.Error)
	}

	rec, _ = e.do(t, http.MethodDelete, "/w/"+keys.WriteKey+"/doc.md?permanent=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hard delete status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	rec, env = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/doc.md", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after hard delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.Error == nil || env.Error.Code != "FILE_NOT_FOUND" {
		t.Errorf("error = %+v, want code FILE_NOT_FOUND", env.Error)
	}
}

func TestCreateFileIsCreateOnly(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	rec, _ := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/once.md",
		map[string]string{"content": "first"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	rec, env := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/once.md",
		map[string]string{"content": "second"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want %d (body: %s)", rec.Code, http.StatusConflict, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "CONFLICT" {
		t.Errorf("error = %+v, want code CONFLICT", env.Error)
	}
}

func TestFolderListing(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	for _, p := range []string{"readme.md", "docs/guide.md", "docs/api.md"} {
		rec, _ := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/"+p,
			map[string]string{"content": "# " + p}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("put %s status = %d, want %d", p, rec.Code, http.StatusCreated)
		}
	}

	rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var data struct {
		Path  string `json:"path"`
		Items []struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"items"`
	}
	decodeData(t, env, &data)

	if len(data.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2 (%+v)", len(data.Items), data.Items)
	}
	// Folders sort before files.
	if data.Items[0].Type != "folder" || data.Items[0].Name != "docs" {
		t.Errorf("items[0] = %+v, want folder docs", data.Items[0])
	}
	if data.Items[1].Type != "file" || data.Items[1].Name != "readme.md" {
		t.Errorf("items[1] = %+v, want file readme.md", data.Items[1])
	}

	rec, env = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/folders/docs", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list docs status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	decodeData(t, env, &data)
	if len(data.Items) != 2 {
		t.Fatalf("len(docs items) = %d, want 2", len(data.Items))
	}

	rec, env = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/folders/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("list missing status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.Error == nil || env.Error.Code != "FOLDER_NOT_FOUND" {
		t.Errorf("error = %+v, want code FOLDER_NOT_FOUND", env.Error)
	}
}

func TestFolderDeleteCascades(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	for _, p := range []string{"docs/a.md", "docs/sub/b.md", "top.md"} {
		rec, _ := e.do(t, http.MethodPut, "/w/"+keys.WriteKey+"/"+p,
			map[string]string{"content": "# " + p}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("put %s status = %d, want %d", p, rec.Code, http.StatusCreated)
		}
	}

	// A read key cannot delete; capability URLs answer 404 rather than
	// revealing the permission gap.
	rec, _ := e.do(t, http.MethodDelete, "/r/"+keys.ReadKey+"/folders/docs", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("read-key delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec, env := e.do(t, http.MethodDelete, "/w/"+keys.WriteKey+"/folders/docs", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("folder delete status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var data struct {
		Path         string `json:"path"`
		DeletedFiles int64  `json:"deletedFiles"`
	}
	decodeData(t, env, &data)
	if data.Path != "/docs" {
		t.Errorf("path = %q, want /docs", data.Path)
	}
	if data.DeletedFiles != 2 {
		t.Errorf("deletedFiles = %d, want 2", data.DeletedFiles)
	}

	rec, _ = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/docs/a.md", nil, nil)
	if rec.Code != http.StatusGone {
		t.Errorf("get deleted file status = %d, want %d", rec.Code, http.StatusGone)
	}
	rec, _ = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/top.md", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get sibling status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec, env = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/folders/docs", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("list deleted folder status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.Error == nil || env.Error.Code != "FOLDER_NOT_FOUND" {
		t.Errorf("error = %+v, want code FOLDER_NOT_FOUND", env.Error)
	}

	rec, _ = e.do(t, http.MethodDelete, "/w/"+keys.WriteKey+"/folders", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("root delete status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec, env = e.do(t, http.MethodDelete, "/w/"+keys.WriteKey+"/folders/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing folder delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.Error == nil || env.Error.Code != "FOLDER_NOT_FOUND" {
		t.Errorf("error = %+v, want code FOLDER_NOT_FOUND", env.Error)
	}
}

func TestBootstrapRateLimit(t *testing.T) {
	e := newTestEnv(t, nil)

	for i := 0; i < ratelimit.DefaultBootstrapPerHour; i++ {
		rec, _ := e.do(t, http.MethodPost, "/bootstrap", nil, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("bootstrap %d status = %d, want %d (body: %s)", i+1, rec.Code, http.StatusCreated, rec.Body.String())
		}
	}

	rec, env := e.do(t, http.MethodPost, "/bootstrap", nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled bootstrap status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("error = %+v, want code RATE_LIMITED", env.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("throttled response has no Retry-After header")
	}
	secs, ok := env.Error.Details["retryAfterSeconds"].(float64)
	if !ok || secs < 1 {
		t.Errorf("details.retryAfterSeconds = %v, want >= 1", env.Error.Details["retryAfterSeconds"])
	}

	// The test-only reset endpoint clears the buckets.
	rec, _ = e.do(t, http.MethodPost, "/__test/reset", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec, _ = e.do(t, http.MethodPost, "/bootstrap", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("bootstrap after reset status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestBootstrapKillSwitch(t *testing.T) {
	e := newTestEnv(t, func(cfg *APIConfig) {
		cfg.BootstrapEnabled = false
	})

	rec, env := e.do(t, http.MethodPost, "/bootstrap", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want code NOT_FOUND", env.Error)
	}
}

func TestAdminMetricsAuth(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name       string
		mod        func(*http.Request)
		wantStatus int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"wrong token", bearer("not-the-secret"), http.StatusForbidden},
		{"correct token", bearer("test-admin-secret"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := e.do(t, http.MethodGet, "/api/v1/admin/metrics", nil, tt.mod)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestWorkspaceAccessIsolation(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	owner := e.sessionCookie(t, "user_owner", "owner@example.com")
	stranger := e.sessionCookie(t, "user_stranger", "stranger@example.com")

	rec, _ := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/claim", nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	t.Run("owner can list API keys", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodGet, "/workspaces/"+keys.WorkspaceID+"/api-keys", nil, owner)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("stranger sees not found", func(t *testing.T) {
		rec, env := e.do(t, http.MethodGet, "/workspaces/"+keys.WorkspaceID+"/api-keys", nil, stranger)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if env.Error == nil || env.Error.Code != "NOT_FOUND" {
			t.Errorf("error = %+v, want code NOT_FOUND", env.Error)
		}
	})

	t.Run("second claim rejected", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/claim", nil, stranger)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
		if env.Error == nil || env.Error.Code != "ALREADY_CLAIMED" {
			t.Errorf("error = %+v, want code ALREADY_CLAIMED", env.Error)
		}
	})
}

func TestAPIKeyLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)
	owner := e.sessionCookie(t, "user_keys", "keys@example.com")

	rec, _ := e.do(t, http.MethodPost, "/w/"+keys.WriteKey+"/claim", nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec, env := e.do(t, http.MethodPost, "/workspaces/"+keys.WorkspaceID+"/api-keys", map[string]any{
		"name":   "ci key",
		"scopes": []string{"read", "export"},
	}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create key status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	decodeData(t, env, &created)
	if created.Key == "" {
		t.Fatal("create key did not return the plaintext")
	}

	t.Run("key authenticates liveness endpoint", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodGet, "/api/v1/agents/liveness", nil, bearer(created.Key))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("revoked key is rejected", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodDelete, "/workspaces/"+keys.WorkspaceID+"/api-keys/"+created.ID, nil, owner)
		if rec.Code != http.StatusOK {
			t.Fatalf("revoke status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
		}

		rec, env := e.do(t, http.MethodGet, "/api/v1/agents/liveness", nil, bearer(created.Key))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if env.Error == nil || env.Error.Code != "KEY_REVOKED" {
			t.Errorf("error = %+v, want code KEY_REVOKED", env.Error)
		}
	})
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)

	rec, env := e.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var data struct {
		Status string `json:"status"`
	}
	decodeData(t, env, &data)
	if data.Status != "ok" {
		t.Errorf("status = %q, want %q", data.Status, "ok")
	}
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t, nil)
	keys := e.bootstrap(t)

	for i, content := range []string{"release checklist", "shopping list", "release notes draft"} {
		rec, _ := e.do(t, http.MethodPut, fmt.Sprintf("/w/%s/n%d.md", keys.WriteKey, i),
			map[string]string{"content": content}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("put %d status = %d, want %d", i, rec.Code, http.StatusCreated)
		}
	}

	rec, env := e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/search?q=release", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var data struct {
		Query   string `json:"query"`
		Results []struct {
			Path string `json:"path"`
		} `json:"results"`
	}
	decodeData(t, env, &data)
	if len(data.Results) != 2 {
		t.Errorf("len(results) = %d, want 2 (%+v)", len(data.Results), data.Results)
	}

	rec, _ = e.do(t, http.MethodGet, "/r/"+keys.ReadKey+"/search", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("search without q status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
