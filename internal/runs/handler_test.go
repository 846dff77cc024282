package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupRunRouter() (*gin.Engine, *Service, *MemoryRepo, *captureQueue) {
	gin.SetMode(gin.TestMode)
	repo := NewMemoryRepo()
	q := &captureQueue{}
	svc := &Service{Repo: repo, Queue: q}
	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router, svc, repo, q
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestStartRunEndpoint(t *testing.T) {
	router, _, repo, q := setupRunRouter()

	resp := postJSON(t, router, "/api/v1/runs", map[string]any{
		"org":         "acme",
		"contributor": "octocat",
		"year":        2024,
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}

	var created struct {
		RunID  string `json:"runId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.RunID == "" {
		t.Fatalf("expected runId, got empty")
	}
	if created.Status != StatusQueued {
		t.Fatalf("expected status QUEUED, got %q", created.Status)
	}
	if _, err := repo.GetByID(context.Background(), created.RunID); err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(q.messages()) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(q.messages()))
	}

	// Duplicate start for the same key is refused.
	resp = postJSON(t, router, "/api/v1/runs", map[string]any{
		"org":         "acme",
		"contributor": "octocat",
		"year":        2024,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestGetRunEndpoint(t *testing.T) {
	router, svc, repo, _ := setupRunRouter()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := repo.SaveSnapshot(context.Background(), run.ID, StatusScanningCommits, StatusScanningCommits, Progress{
		Phase: StatusScanningCommits, Total: 5, Completed: 2, Message: "scanning commits (2/5 repos)",
	}); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var got struct {
		Status   string   `json:"status"`
		Progress Progress `json:"progress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusScanningCommits {
		t.Fatalf("expected SCANNING_COMMITS, got %q", got.Status)
	}
	if got.Progress.Completed != 2 || got.Progress.Total != 5 {
		t.Fatalf("unexpected progress: %+v", got.Progress)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestConfirmRunEndpoint(t *testing.T) {
	router, svc, repo, _ := setupRunRouter()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	resp := postJSON(t, router, "/api/v1/runs/"+run.ID+"/confirm", map[string]string{"decision": "confirm"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409 before awaiting, got %d", resp.Code)
	}

	if err := repo.SetStatus(context.Background(), run.ID, StatusAwaitingAI); err != nil {
		t.Fatalf("set status: %v", err)
	}
	resp = postJSON(t, router, "/api/v1/runs/"+run.ID+"/confirm", map[string]string{"decision": "skip"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}

	stored, err := repo.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.AIConfirmation != ConfirmationSkipped {
		t.Fatalf("expected SKIPPED, got %q", stored.AIConfirmation)
	}

	resp = postJSON(t, router, "/api/v1/runs/"+run.ID+"/confirm", map[string]string{"decision": "maybe"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestPauseResumeCancelEndpoints(t *testing.T) {
	router, svc, _, _ := setupRunRouter()
	run, err := svc.Start(context.Background(), "acme", "octocat", 2024, Options{})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	resp := postJSON(t, router, "/api/v1/runs/"+run.ID+"/pause", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", resp.Code)
	}

	resp = postJSON(t, router, "/api/v1/runs/"+run.ID+"/resume", map[string]string{"mode": "full_restart"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("resume: expected 202, got %d", resp.Code)
	}

	resp = postJSON(t, router, "/api/v1/runs/"+run.ID+"/cancel", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.Code)
	}

	var got struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusFailed || got.Error == "" {
		t.Fatalf("expected failed run with error, got %+v", got)
	}
}
