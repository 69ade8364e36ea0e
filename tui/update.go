package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.store)
		case "j", "down":
			if m.selectedRow < len(m.executions)-1 {
				m.selectedRow++
			}
			maxVisible := m.visibleRows()
			if m.selectedRow >= m.scroll+maxVisible {
				m.scroll = m.selectedRow - maxVisible + 1
			}
			if m.showTrail {
				return m, m.loadSelectedTrail()
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.selectedRow < m.scroll {
				m.scroll = m.selectedRow
			}
			if m.showTrail {
				return m, m.loadSelectedTrail()
			}
		case "enter":
			m.showTrail = true
			return m, m.loadSelectedTrail()
		case "esc":
			m.showTrail = false
			m.trail = nil
			m.trailFor = ""
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(refreshCmd(m.store), tickCmd())

	case ExecutionsMsg:
		if msg.Err != nil {
			m.loadErr = msg.Err.Error()
			return m, nil
		}
		m.loadErr = ""
		m.setExecutions(msg.Executions)
		return m, nil

	case TrailMsg:
		if msg.Err != nil {
			m.loadErr = msg.Err.Error()
			return m, nil
		}
		m.trail = msg.Rows
		m.trailFor = msg.ExecutionID
		return m, nil
	}

	return m, nil
}

func (m *Model) setExecutions(executions []*domain.Execution) {
	m.executions = executions
	m.lastRefresh = time.Now()

	if m.selectedRow >= len(executions) {
		m.selectedRow = 0
		m.scroll = 0
	}

	m.runningCount = 0
	m.successToday = 0
	m.failedToday = 0
	midnight := startOfDay(time.Now())
	for _, e := range executions {
		switch e.Status {
		case domain.ExecutionRunning:
			m.runningCount++
		case domain.ExecutionSuccess:
			if e.FinishedAt != nil && e.FinishedAt.After(midnight) {
				m.successToday++
			}
		case domain.ExecutionFailed:
			if e.FinishedAt != nil && e.FinishedAt.After(midnight) {
				m.failedToday++
			}
		}
	}
}

func (m Model) loadSelectedTrail() tea.Cmd {
	if m.selectedRow >= len(m.executions) {
		return nil
	}
	return trailCmd(m.store, m.executions[m.selectedRow].ID)
}

func (m Model) visibleRows() int {
	rows := m.height - 8
	if m.showTrail {
		rows -= 10
	}
	if rows < 3 {
		rows = 3
	}
	return rows
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
