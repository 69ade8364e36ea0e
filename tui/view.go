package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" PR Review Orchestrator │ Running: %d │ Today: %d ok / %d failed ",
		m.runningCount, m.successToday, m.failedToday)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderExecutions()))
	b.WriteString("\n")

	if m.showTrail {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderTrail()))
		b.WriteString("\n")
	}

	status := " j/k: navigate │ enter: audit trail │ esc: close │ r: refresh │ q: quit "
	if m.loadErr != "" {
		status = " error: " + m.loadErr + " "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(status))

	return b.String()
}

func (m Model) renderExecutions() string {
	var b strings.Builder
	b.WriteString("Executions\n")

	if len(m.executions) == 0 {
		b.WriteString(dimmedStyle.Render("  no executions yet"))
		return b.String()
	}

	visible := m.visibleRows()
	end := m.scroll + visible
	if end > len(m.executions) {
		end = len(m.executions)
	}

	for i := m.scroll; i < end; i++ {
		e := m.executions[i]
		line := fmt.Sprintf("  %-10s %-32s %-14s %-8s %s",
			shortID(e.ID),
			truncate(fmt.Sprintf("%s/%s#%d", e.PR.Owner, e.PR.Repo, e.PR.Number), 32),
			e.Stage,
			e.Status,
			age(e.StartedAt),
		)
		style := statusStyle(e.Status)
		if i == m.selectedRow {
			style = selectedStyle
			line = ">" + line[1:]
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	if end < len(m.executions) {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  ... %d more", len(m.executions)-end)))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderTrail() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Audit trail %s\n", shortID(m.trailFor)))

	if len(m.trail) == 0 {
		b.WriteString(dimmedStyle.Render("  no task results recorded"))
		return b.String()
	}

	for _, row := range m.trail {
		marker := successStyle.Render("ok")
		if !row.Result.OK() {
			marker = failedStyle.Render(fmt.Sprintf("%d %s", row.Result.StatusCode, row.Result.ErrorKind))
		}
		b.WriteString(fmt.Sprintf("  pass %d  %-18s chunk %-3d %s\n",
			row.Pass, row.Task, row.Result.ChunkIndex, marker))
	}

	return strings.TrimRight(b.String(), "\n")
}

func statusStyle(status domain.ExecutionStatus) lipgloss.Style {
	switch status {
	case domain.ExecutionRunning:
		return runningStyle
	case domain.ExecutionSuccess:
		return successStyle
	case domain.ExecutionFailed:
		return failedStyle
	}
	return dimmedStyle
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func age(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	if d > time.Hour {
		return d.Round(time.Minute).String()
	}
	return d.String()
}
