package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/store"
)

// Store is the read surface the TUI needs.
type Store interface {
	ListExecutions(opts store.ListOptions) ([]*domain.Execution, error)
	ListTaskResults(executionID string) ([]store.TaskResultRow, error)
}

// Model is the TUI application model
type Model struct {
	store Store

	// Data
	executions []*domain.Execution
	trail      []store.TaskResultRow
	trailFor   string

	// Stats
	runningCount int
	failedToday  int
	successToday int

	// UI state
	width       int
	height      int
	selectedRow int
	scroll      int
	showTrail   bool
	loadErr     string

	// Refresh
	lastRefresh time.Time
}

// NewModel creates a new TUI model
func NewModel(st Store) Model {
	return Model{store: st}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(m.store),
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// ExecutionsMsg carries a fresh execution listing
type ExecutionsMsg struct {
	Executions []*domain.Execution
	Err        error
}

func refreshCmd(st Store) tea.Cmd {
	return func() tea.Msg {
		executions, err := st.ListExecutions(store.ListOptions{Limit: 100})
		return ExecutionsMsg{Executions: executions, Err: err}
	}
}

// TrailMsg carries the audit trail of the selected execution
type TrailMsg struct {
	ExecutionID string
	Rows        []store.TaskResultRow
	Err         error
}

func trailCmd(st Store, executionID string) tea.Cmd {
	return func() tea.Msg {
		rows, err := st.ListTaskResults(executionID)
		return TrailMsg{ExecutionID: executionID, Rows: rows, Err: err}
	}
}
