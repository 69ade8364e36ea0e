package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

// ReviewStats are the headline numbers of an aggregated review.
type ReviewStats struct {
	TotalFiles     int                     `json:"total_files"`
	ReviewedFiles  int                     `json:"reviewed_files"`
	TotalIssues    int                     `json:"total_issues"`
	SeverityCounts map[domain.Severity]int `json:"severity_counts"`
	CategoryCounts map[string]int          `json:"category_counts"`
}

// AggregateReport is the aggregateResults collaborator's output body,
// consumed by both publication branches.
type AggregateReport struct {
	PR             domain.PRRef `json:"pr"`
	Stats          ReviewStats  `json:"stats"`
	MarkdownReport string       `json:"markdown_report"`
	PRComment      string       `json:"pr_comment"`
	ChatMessage    string       `json:"chat_message"`
	FailedChunks   []int        `json:"failed_chunks,omitempty"`
}

// OverallSeverity folds the stats into a single verdict.
func (r *AggregateReport) OverallSeverity() domain.Severity {
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor} {
		if r.Stats.SeverityCounts[s] > 0 {
			return s
		}
	}
	return domain.SeverityNormal
}

// AggregateResults merges the per-chunk reports into one review
// summary. Chunks that still carry a failure after the retry pass are
// reported as unreviewed rather than failing the aggregation.
func (c *Collaborators) AggregateResults(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	var in workflow.AggregateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decoding aggregate input: %w", err)
	}

	var reviews []FileReview
	var failedChunks []int
	for _, res := range in.Results {
		if !res.OK() {
			failedChunks = append(failedChunks, res.ChunkIndex)
			continue
		}
		var report ChunkReport
		if err := json.Unmarshal(res.Body, &report); err != nil {
			log.Printf("[review] aggregate: decoding chunk %d report: %v", res.ChunkIndex, err)
			failedChunks = append(failedChunks, res.ChunkIndex)
			continue
		}
		reviews = append(reviews, report.Results...)
	}
	sort.Ints(failedChunks)

	stats := computeStats(in.TotalFiles, reviews)
	report := AggregateReport{
		PR:           in.PR,
		Stats:        stats,
		FailedChunks: failedChunks,
	}
	report.MarkdownReport = buildMarkdownReport(in.PR, stats, reviews, failedChunks)
	report.PRComment = buildPRComment(stats, reviews, failedChunks)
	report.ChatMessage = buildChatMessage(in.PR, &report)

	body, err := json.Marshal(report)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("encoding aggregate report: %w", err)
	}
	return domain.TaskResult{StatusCode: 200, Body: body}, nil
}

func computeStats(totalFiles int, reviews []FileReview) ReviewStats {
	stats := ReviewStats{
		TotalFiles:     totalFiles,
		ReviewedFiles:  len(reviews),
		SeverityCounts: make(map[domain.Severity]int),
		CategoryCounts: make(map[string]int),
	}
	for _, r := range reviews {
		stats.SeverityCounts[r.Severity]++
		for _, s := range r.Suggestions {
			stats.TotalIssues++
			category := s.Category
			if category == "" {
				category = "other"
			}
			stats.CategoryCounts[category]++
		}
	}
	return stats
}

// issuesBySeverity returns all suggestions of one severity, ordered by
// file path then line.
func issuesBySeverity(reviews []FileReview, severity domain.Severity) []Suggestion {
	var issues []Suggestion
	for _, r := range reviews {
		for _, s := range r.Suggestions {
			if s.Severity == severity {
				issues = append(issues, s)
			}
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		return issues[i].LineNumber.Value < issues[j].LineNumber.Value
	})
	return issues
}

func buildMarkdownReport(pr domain.PRRef, stats ReviewStats, reviews []FileReview, failedChunks []int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Code Review Report: %s\n", pr.Title)
	fmt.Fprintf(&b, "\nGenerated at: %s\n", time.Now().Format("2006-01-02 15:04:05"))

	b.WriteString("\n## Overview\n")
	fmt.Fprintf(&b, "- Repository: %s/%s\n", pr.Owner, pr.Repo)
	fmt.Fprintf(&b, "- PR Number: %d\n", pr.Number)
	fmt.Fprintf(&b, "- Files Reviewed: %d of %d\n", stats.ReviewedFiles, stats.TotalFiles)
	fmt.Fprintf(&b, "- Total Issues Found: %d\n", stats.TotalIssues)

	if len(failedChunks) > 0 {
		fmt.Fprintf(&b, "\n> %d chunk(s) could not be reviewed and are not included below.\n", len(failedChunks))
	}

	writeChangeSummary(&b, reviews)

	b.WriteString("\n## Severity Summary\n")
	b.WriteString("| Severity | Count |\n|----------|-------|\n")
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor, domain.SeverityNormal} {
		if count := stats.SeverityCounts[s]; count > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", s, count)
		}
	}

	b.WriteString("\n## Category Summary\n")
	b.WriteString("| Category | Count |\n|----------|-------|\n")
	for _, category := range sortedKeys(stats.CategoryCounts) {
		fmt.Fprintf(&b, "| %s | %d |\n", titleCase(category), stats.CategoryCounts[category])
	}

	if critical := issuesBySeverity(reviews, domain.SeverityCritical); len(critical) > 0 {
		b.WriteString("\n## Critical Issues\n")
		for _, issue := range critical {
			writeIssueDetail(&b, issue)
		}
	}
	if major := issuesBySeverity(reviews, domain.SeverityMajor); len(major) > 0 {
		b.WriteString("\n## Major Issues\n")
		for _, issue := range major {
			writeIssueDetail(&b, issue)
		}
	}

	b.WriteString("\n## Detailed Review by File\n")
	b.WriteString("\n| File | Line | Category | Severity | Description | Suggestion |\n")
	b.WriteString("|------|------|----------|----------|-------------|------------|\n")
	for _, r := range reviews {
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				r.Path,
				s.LineNumber.Display(),
				titleCase(s.Category),
				s.Severity,
				escapePipes(s.Description),
				escapePipes(s.Suggestion),
			)
		}
	}

	b.WriteString("\n---\n")
	b.WriteString("_This report was automatically generated._\n")

	return b.String()
}

func writeChangeSummary(b *strings.Builder, reviews []FileReview) {
	functional := collectChanges(reviews, func(s ChangeSummary) []string { return s.FunctionalChanges })
	architectural := collectChanges(reviews, func(s ChangeSummary) []string { return s.ArchitecturalChanges })
	technical := collectChanges(reviews, func(s ChangeSummary) []string { return s.TechnicalImprovements })

	if len(functional)+len(architectural)+len(technical) == 0 {
		return
	}

	b.WriteString("\n## Key Changes\n")
	writeChangeList(b, "Functional Changes", functional)
	writeChangeList(b, "Architectural Changes", architectural)
	writeChangeList(b, "Technical Improvements", technical)
}

func writeChangeList(b *strings.Builder, title string, changes []string) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n", title)
	for _, change := range changes {
		fmt.Fprintf(b, "- %s\n", change)
	}
}

// collectChanges dedupes and sorts one change category across files.
func collectChanges(reviews []FileReview, pick func(ChangeSummary) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reviews {
		for _, change := range pick(r.Summary) {
			if change != "" && !seen[change] {
				seen[change] = true
				out = append(out, change)
			}
		}
	}
	sort.Strings(out)
	return out
}

func writeIssueDetail(b *strings.Builder, issue Suggestion) {
	fmt.Fprintf(b, "\n### %s (Line %s)\n", issue.File, issue.LineNumber.Display())
	fmt.Fprintf(b, "**Issue:** %s\n", issue.Description)
	if issue.Suggestion != "" {
		fmt.Fprintf(b, "**Suggestion:** %s\n", issue.Suggestion)
	}
}

func buildPRComment(stats ReviewStats, reviews []FileReview, failedChunks []int) string {
	var b strings.Builder

	b.WriteString("# Code Review Summary\n")
	fmt.Fprintf(&b, "\nReviewed %d of %d files and found %d issues.\n", stats.ReviewedFiles, stats.TotalFiles, stats.TotalIssues)

	if len(failedChunks) > 0 {
		fmt.Fprintf(&b, "\n> %d chunk(s) could not be reviewed.\n", len(failedChunks))
	}

	b.WriteString("\n## Severity Breakdown\n")
	b.WriteString("| Severity | Count |\n|----------|-------|\n")
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor, domain.SeverityNormal} {
		if count := stats.SeverityCounts[s]; count > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", s, count)
		}
	}

	if critical := issuesBySeverity(reviews, domain.SeverityCritical); len(critical) > 0 {
		b.WriteString("\n### Critical Issues Found\n")
		for _, issue := range critical {
			fmt.Fprintf(&b, "\n- **%s** (Line %s)\n  - %s\n", issue.File, issue.LineNumber.Display(), issue.Description)
			if issue.Suggestion != "" {
				fmt.Fprintf(&b, "  - Suggestion: %s\n", issue.Suggestion)
			}
		}
	}

	if major := issuesBySeverity(reviews, domain.SeverityMajor); len(major) > 0 {
		b.WriteString("\n### Major Issues Found\n")
		shown := major
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, issue := range shown {
			fmt.Fprintf(&b, "\n- **%s** (Line %s)\n  - %s\n", issue.File, issue.LineNumber.Display(), issue.Description)
		}
		if len(major) > 5 {
			fmt.Fprintf(&b, "\n... and %d more major issues.\n", len(major)-5)
		}
	}

	return b.String()
}

func buildChatMessage(pr domain.PRRef, report *AggregateReport) string {
	title := pr.Title
	if len(title) > 100 {
		title = title[:100] + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review completed for %s/%s#%d: %s\n", pr.Owner, pr.Repo, pr.Number, title)
	fmt.Fprintf(&b, "Overall severity: %s\n", report.OverallSeverity())
	fmt.Fprintf(&b, "Found %d issues in %d of %d files.",
		report.Stats.TotalIssues, report.Stats.ReviewedFiles, report.Stats.TotalFiles)
	if len(report.FailedChunks) > 0 {
		fmt.Fprintf(&b, "\n%d chunk(s) could not be reviewed.", len(report.FailedChunks))
	}
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
