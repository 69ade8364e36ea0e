package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/store"
)

func TestSubmitReviewHandler(t *testing.T) {
	var got domain.ReviewRequest
	submit := func(req domain.ReviewRequest) (string, error) {
		got = req
		return "exec-1", nil
	}

	server := NewServer(&mockStore{}, submit, ":8080")
	handler := server.submitReviewHandler()

	body := strings.NewReader(`{"owner":"acme","repo":"widgets","number":42}`)
	req := httptest.NewRequest("POST", "/api/reviews", body)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202", w.Code)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["execution_id"] != "exec-1" {
		t.Errorf("execution_id = %q, want exec-1", resp["execution_id"])
	}
	if got.Platform != domain.PlatformGitHub {
		t.Errorf("Platform = %q, want github default", got.Platform)
	}
}

func TestSubmitReviewHandlerRejectsIncomplete(t *testing.T) {
	server := NewServer(&mockStore{}, func(domain.ReviewRequest) (string, error) {
		t.Fatal("submit should not be called")
		return "", nil
	}, ":8080")
	handler := server.submitReviewHandler()

	req := httptest.NewRequest("POST", "/api/reviews", strings.NewReader(`{"owner":"acme"}`))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestListExecutionsHandler(t *testing.T) {
	st := &mockStore{
		executions: []*domain.Execution{
			sampleExecution("exec-1", domain.ExecutionSuccess),
			sampleExecution("exec-2", domain.ExecutionRunning),
		},
	}

	server := NewServer(st, nil, ":8080")
	handler := server.listExecutionsHandler()

	req := httptest.NewRequest("GET", "/api/executions?status=success", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if st.listOpts.Status != domain.ExecutionSuccess {
		t.Errorf("Status filter = %q, want success", st.listOpts.Status)
	}

	var executions []ExecutionResponse
	json.NewDecoder(w.Body).Decode(&executions)
	if len(executions) != 2 {
		t.Fatalf("Execution count = %d, want 2", len(executions))
	}
	if executions[0].PRURL != "https://github.com/acme/widgets/pull/42" {
		t.Errorf("PRURL = %q", executions[0].PRURL)
	}
}

func TestGetExecutionHandlerIncludesAuditTrail(t *testing.T) {
	st := &mockStore{
		executions: []*domain.Execution{sampleExecution("exec-1", domain.ExecutionSuccess)},
		results: []store.TaskResultRow{
			{Pass: 1, Task: "initialProcessing", Result: domain.TaskResult{StatusCode: 200}},
			{Pass: 1, Task: "processChunk", Result: domain.TaskResult{ChunkIndex: 2, StatusCode: 429, ErrorKind: domain.ErrorKindRateLimited}},
		},
	}

	server := NewServer(st, nil, ":8080")
	handler := server.getExecutionHandler()

	req := httptest.NewRequest("GET", "/api/executions/exec-1", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var detail ExecutionDetailResponse
	json.NewDecoder(w.Body).Decode(&detail)

	if detail.ID != "exec-1" {
		t.Errorf("ID = %q, want exec-1", detail.ID)
	}
	if len(detail.TaskResults) != 2 {
		t.Fatalf("TaskResults = %d, want 2", len(detail.TaskResults))
	}
	if detail.TaskResults[1].ErrorKind != "rate_limited" {
		t.Errorf("ErrorKind = %q, want rate_limited", detail.TaskResults[1].ErrorKind)
	}
}

func TestGetExecutionHandlerNotFound(t *testing.T) {
	server := NewServer(&mockStore{}, nil, ":8080")
	handler := server.getExecutionHandler()

	req := httptest.NewRequest("GET", "/api/executions/nope", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func sampleExecution(id string, status domain.ExecutionStatus) *domain.Execution {
	return &domain.Execution{
		ID: id,
		PR: domain.PRRef{
			Platform: domain.PlatformGitHub,
			Owner:    "acme",
			Repo:     "widgets",
			Number:   42,
			Title:    "Add widget cache",
		},
		Stage:     domain.StageFinalize,
		Status:    status,
		StartedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

type mockStore struct {
	executions []*domain.Execution
	results    []store.TaskResultRow
	listOpts   store.ListOptions
}

func (m *mockStore) ListExecutions(opts store.ListOptions) ([]*domain.Execution, error) {
	m.listOpts = opts
	return m.executions, nil
}

func (m *mockStore) GetExecution(id string) (*domain.Execution, error) {
	for _, e := range m.executions {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("execution not found")
}

func (m *mockStore) ListTaskResults(executionID string) ([]store.TaskResultRow, error) {
	return m.results, nil
}
