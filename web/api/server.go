// Package api exposes the orchestrator over HTTP: review submission,
// execution status, and a live event feed via SSE and websocket.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/store"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

// Store is the read surface the API needs.
type Store interface {
	ListExecutions(opts store.ListOptions) ([]*domain.Execution, error)
	GetExecution(id string) (*domain.Execution, error)
	ListTaskResults(executionID string) ([]store.TaskResultRow, error)
}

// Submitter starts a review and returns its execution id.
type Submitter func(req domain.ReviewRequest) (string, error)

// Server is the HTTP API server. It also implements workflow.EventSink
// so orchestrator events reach connected clients.
type Server struct {
	store    Store
	submit   Submitter
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
	upgrader websocket.Upgrader
}

// NewServer creates a new API server.
func NewServer(store Store, submit Submitter, addr string) *Server {
	s := &Server{
		store:  store,
		submit: submit,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/reviews", s.submitReviewHandler())
	s.mux.HandleFunc("/api/executions", s.listExecutionsHandler())
	s.mux.HandleFunc("/api/executions/", s.getExecutionHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the server's routing mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Emit implements workflow.EventSink: orchestrator events are fanned
// out to every connected client.
func (s *Server) Emit(ev workflow.Event) {
	s.sseHub.Broadcast(SSEEvent{Type: "execution_update", Data: ev})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
