package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/store"
)

// ExecutionResponse is the API representation of an execution.
type ExecutionResponse struct {
	ID         string  `json:"id"`
	Platform   string  `json:"platform"`
	Owner      string  `json:"owner"`
	Repo       string  `json:"repo"`
	Number     int     `json:"number"`
	Title      string  `json:"title,omitempty"`
	PRURL      string  `json:"pr_url"`
	Stage      string  `json:"stage"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// TaskResultResponse is one audit-trail entry of an execution.
type TaskResultResponse struct {
	Pass       int    `json:"pass"`
	Task       string `json:"task"`
	ChunkIndex int    `json:"chunk_index"`
	StatusCode int    `json:"status_code"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ExecutionDetailResponse adds the audit trail to an execution.
type ExecutionDetailResponse struct {
	ExecutionResponse
	TaskResults []TaskResultResponse `json:"task_results"`
}

func executionToResponse(e *domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:        e.ID,
		Platform:  string(e.PR.Platform),
		Owner:     e.PR.Owner,
		Repo:      e.PR.Repo,
		Number:    e.PR.Number,
		Title:     e.PR.Title,
		PRURL:     e.PR.URL(),
		Stage:     string(e.Stage),
		Status:    string(e.Status),
		Error:     e.Error,
		StartedAt: e.StartedAt.Format(time.RFC3339),
	}
	if e.FinishedAt != nil {
		t := e.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func taskResultToResponse(row store.TaskResultRow) TaskResultResponse {
	return TaskResultResponse{
		Pass:       row.Pass,
		Task:       row.Task,
		ChunkIndex: row.Result.ChunkIndex,
		StatusCode: row.Result.StatusCode,
		ErrorKind:  string(row.Result.ErrorKind),
		Error:      row.Result.ErrorMessage,
	}
}

func (s *Server) submitReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req domain.ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Owner == "" || req.Repo == "" || req.Number <= 0 {
			writeError(w, http.StatusBadRequest, "owner, repo and number are required")
			return
		}
		if req.Platform == "" {
			req.Platform = domain.PlatformGitHub
		}

		id, err := s.submit(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"execution_id": id})
	}
}

func (s *Server) listExecutionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		opts := store.ListOptions{Limit: 50}
		if status := r.URL.Query().Get("status"); status != "" {
			opts.Status = domain.ExecutionStatus(status)
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			opts.Limit = n
		}

		executions, err := s.store.ListExecutions(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]ExecutionResponse, len(executions))
		for i, e := range executions {
			responses[i] = executionToResponse(e)
		}
		writeJSON(w, responses)
	}
}

func (s *Server) getExecutionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/executions/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusBadRequest, "execution ID required")
			return
		}

		execution, err := s.store.GetExecution(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}

		rows, err := s.store.ListTaskResults(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		detail := ExecutionDetailResponse{
			ExecutionResponse: executionToResponse(execution),
			TaskResults:       make([]TaskResultResponse, len(rows)),
		}
		for i, row := range rows {
			detail.TaskResults[i] = taskResultToResponse(row)
		}
		writeJSON(w, detail)
	}
}
