package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slipstream/downloaddb/internal/download"
	"github.com/slipstream/downloaddb/internal/repository"
	"github.com/slipstream/downloaddb/internal/testutil"
)

type testServer struct {
	*Server
	repo *repository.Repository
}

func setupTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	repo := repository.New(tdb.Conn, tdb.Logger)
	server := NewServer(repo, tdb.Logger)

	cleanup := func() {
		tdb.Close()
	}

	return &testServer{Server: server, repo: repo}, cleanup
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) seedTask(t *testing.T, url string) *download.Task {
	t.Helper()

	res, err := ts.repo.SaveTask(context.Background(), download.NewTask(url, "/downloads/file"))
	if err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}
	return res.Task
}

func TestHealthCheck(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("HealthCheck status = %d, want %d", rec.Code, http.StatusOK)
	}

	response := decode[map[string]any](t, rec)
	if response["status"] != "ok" {
		t.Errorf("HealthCheck status = %q, want %q", response["status"], "ok")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("HealthCheck missing request id header")
	}
}

func TestCreateTask(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks",
		`{"url":"https://example.com/file.zip","targetPath":"/downloads/file.zip"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateTask status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	created := decode[download.Task](t, rec)
	if created.ID.IsZero() {
		t.Error("CreateTask returned zero id")
	}
	if created.Status != download.Waiting() {
		t.Errorf("CreateTask status = %v, want Waiting", created.Status)
	}

	// Same URL again is merged into the stored task.
	rec = ts.do(t, http.MethodPost, "/api/v1/tasks",
		`{"url":"https://example.com/file.zip","targetPath":"/elsewhere.zip","status":"active"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate CreateTask status = %d, want %d", rec.Code, http.StatusOK)
	}
	merged := decode[download.Task](t, rec)
	if merged.ID != created.ID {
		t.Errorf("duplicate CreateTask id = %s, want %s", merged.ID, created.ID)
	}
	if merged.TargetPath != "/downloads/file.zip" {
		t.Errorf("duplicate CreateTask targetPath = %q, want stored path", merged.TargetPath)
	}
}

func TestCreateTask_BadInput(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url":`},
		{"missing url", `{"targetPath":"/tmp/x"}`},
		{"unknown status", `{"url":"https://example.com/x","status":"exploded"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ListTasks status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("ListTasks on empty store = %s, want []", body)
	}

	a := ts.seedTask(t, "https://example.com/a")
	ts.seedTask(t, "https://example.com/b")
	if err := ts.repo.UpdateStatus(context.Background(), a.ID, download.Failed("disk full")); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	all := decode[[]download.Task](t, ts.do(t, http.MethodGet, "/api/v1/tasks", ""))
	if len(all) != 2 {
		t.Errorf("ListTasks len = %d, want 2", len(all))
	}

	failed := decode[[]download.Task](t, ts.do(t, http.MethodGet, "/api/v1/tasks?status=failed:disk%20full", ""))
	if len(failed) != 1 || failed[0].ID != a.ID {
		t.Errorf("ListTasks by failed = %+v, want only %s", failed, a.ID)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ListTasks bad status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLookupTask(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	task := ts.seedTask(t, "https://example.com/lookup?x=1")

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks/lookup?url=https%3A%2F%2Fexample.com%2Flookup%3Fx%3D1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("LookupTask status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[download.Task](t, rec); got.ID != task.ID {
		t.Errorf("LookupTask id = %s, want %s", got.ID, task.ID)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/lookup?url=https%3A%2F%2Fnowhere.example", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("LookupTask missing = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/lookup", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("LookupTask without url = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetTask(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	task := ts.seedTask(t, "https://example.com/get")

	rec := ts.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GetTask status = %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["progress"] != nil {
		t.Errorf("GetTask without progress has progress = %v", got["progress"])
	}

	if err := ts.repo.SaveProgress(context.Background(), task.ID, &download.Progress{
		DownloadedBytes: 5120,
		TotalBytes:      download.Uint64Ptr(10240),
	}); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	resp := decode[TaskResponse](t, ts.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID.String(), ""))
	if resp.Progress == nil || resp.Progress.Percentage == nil {
		t.Fatalf("GetTask progress = %+v, want percentage", resp.Progress)
	}
	if *resp.Progress.Percentage != 50 {
		t.Errorf("GetTask percentage = %v, want 50", *resp.Progress.Percentage)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GetTask invalid id = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/tasks/"+download.NewTaskID().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetTask unknown id = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUpdateStatus(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	task := ts.seedTask(t, "https://example.com/status")

	rec := ts.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID.String()+"/status", `{"status":"failed: 503 from origin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("UpdateStatus status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[download.Task](t, rec); got.Status != download.Failed("503 from origin") {
		t.Errorf("UpdateStatus status = %v", got.Status)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID.String()+"/status", `{"status":"paused:why"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("UpdateStatus invalid = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/tasks/"+download.NewTaskID().String()+"/status", `{"status":"active"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("UpdateStatus unknown id = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestProgressEndpoints(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	task := ts.seedTask(t, "https://example.com/progress")
	path := "/api/v1/tasks/" + task.ID.String() + "/progress"

	rec := ts.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetProgress before save = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = ts.do(t, http.MethodPut, path, `{"downloadedBytes":256,"speedBps":64}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("SaveProgress status = %d: %s", rec.Code, rec.Body.String())
	}
	saved := decode[ProgressResponse](t, rec)
	if saved.DownloadedBytes != 256 || saved.TotalBytes != nil || saved.Percentage != nil {
		t.Errorf("SaveProgress response = %+v", saved)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/tasks/"+download.NewTaskID().String()+"/progress", `{"downloadedBytes":1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("SaveProgress orphan = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = ts.do(t, http.MethodDelete, path, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DeleteProgress = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = ts.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetProgress after delete = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteAndClear(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	a := ts.seedTask(t, "https://example.com/del-a")
	ts.seedTask(t, "https://example.com/del-b")
	ts.seedTask(t, "https://example.com/del-c")

	rec := ts.do(t, http.MethodDelete, "/api/v1/tasks/"+a.ID.String(), "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DeleteTask = %d, want %d", rec.Code, http.StatusNoContent)
	}
	// Deleting again is not an error.
	rec = ts.do(t, http.MethodDelete, "/api/v1/tasks/"+a.ID.String(), "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("second DeleteTask = %d, want %d", rec.Code, http.StatusNoContent)
	}

	stats := decode[StatsResponse](t, ts.do(t, http.MethodGet, "/api/v1/stats", ""))
	if stats.Total != 2 {
		t.Errorf("stats total = %d, want 2", stats.Total)
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/tasks", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("ClearTasks = %d, want %d", rec.Code, http.StatusNoContent)
	}

	stats = decode[StatsResponse](t, ts.do(t, http.MethodGet, "/api/v1/stats", ""))
	if stats.Total != 0 || len(stats.ByStatus) != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
}

func TestGetStats(t *testing.T) {
	ts, cleanup := setupTestServer(t)
	defer cleanup()

	ts.seedTask(t, "https://example.com/s1")
	ts.seedTask(t, "https://example.com/s2")
	done := ts.seedTask(t, "https://example.com/s3")
	if err := ts.repo.UpdateStatus(context.Background(), done.ID, download.Completed()); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	stats := decode[StatsResponse](t, ts.do(t, http.MethodGet, "/api/v1/stats", ""))
	if stats.Total != 3 {
		t.Errorf("stats total = %d, want 3", stats.Total)
	}

	want := []StatusStats{{Status: "Completed", Count: 1}, {Status: "Waiting", Count: 2}}
	if len(stats.ByStatus) != len(want) {
		t.Fatalf("stats byStatus = %+v, want %+v", stats.ByStatus, want)
	}
	for i := range want {
		if stats.ByStatus[i] != want[i] {
			t.Errorf("stats byStatus[%d] = %+v, want %+v", i, stats.ByStatus[i], want[i])
		}
	}
}
