// Package review implements the collaborators of the PR review
// pipeline: fetching the PR, splitting it into work items, reviewing
// chunks with the model backend, aggregating findings, and publishing
// the outcome.
package review

import (
	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// Suggestion is a single review finding on a file.
type Suggestion struct {
	File        string          `json:"file,omitempty"`
	Category    string          `json:"category"`
	Severity    domain.Severity `json:"severity"`
	LineNumber  LineNumber      `json:"line_number"`
	Description string          `json:"description"`
	Suggestion  string          `json:"suggestion"`
}

// ChangeSummary groups the model's description of what changed.
type ChangeSummary struct {
	FunctionalChanges     []string `json:"functional_changes"`
	ArchitecturalChanges  []string `json:"architectural_changes"`
	TechnicalImprovements []string `json:"technical_improvements"`
}

// FileReview is the model's verdict on one changed file.
type FileReview struct {
	Path        string          `json:"file_path"`
	Language    string          `json:"language"`
	Summary     ChangeSummary   `json:"summary"`
	Severity    domain.Severity `json:"severity"`
	Suggestions []Suggestion    `json:"suggestions"`
}

// ChunkReport is the processChunk collaborator's output body.
type ChunkReport struct {
	ChunkIndex int             `json:"chunk_index"`
	Severity   domain.Severity `json:"chunk_severity"`
	Results    []FileReview    `json:"results"`
}

// severityRank orders severities for max-severity folding.
func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityMajor:
		return 3
	case domain.SeverityMinor:
		return 2
	default:
		return 1
	}
}

// MaxSeverity returns the highest severity among the suggestions,
// NORMAL when there are none.
func MaxSeverity(suggestions []Suggestion) domain.Severity {
	max := domain.SeverityNormal
	for _, s := range suggestions {
		if severityRank(s.Severity) > severityRank(max) {
			max = s.Severity
		}
	}
	return max
}
