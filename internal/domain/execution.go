package domain

import (
	"fmt"
	"time"
)

// PRRef identifies the pull request an execution reviews
type PRRef struct {
	Platform Platform `json:"platform"`
	Owner    string   `json:"owner"`
	Repo     string   `json:"repo"`
	Number   int      `json:"number"`
	Title    string   `json:"title,omitempty"`
}

// URL returns the web address of the pull request.
func (p PRRef) URL() string {
	switch p.Platform {
	case PlatformGitLab:
		return fmt.Sprintf("https://gitlab.com/%s/%s/-/merge_requests/%d", p.Owner, p.Repo, p.Number)
	default:
		return fmt.Sprintf("https://github.com/%s/%s/pull/%d", p.Owner, p.Repo, p.Number)
	}
}

// Execution represents one workflow run over a single PR.
// It is created when a review request arrives, advanced only by the
// orchestrator, and terminates in success or failed exactly once.
type Execution struct {
	ID         string
	PR         PRRef
	Stage      Stage
	Status     ExecutionStatus
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ReviewRequest is the raw incoming request to review a PR
type ReviewRequest struct {
	Platform Platform `json:"platform"`
	Owner    string   `json:"owner"`
	Repo     string   `json:"repo"`
	Number   int      `json:"number"`
}

// ChangedFile is one file of the PR's diff
type ChangedFile struct {
	Path      string `json:"path"`
	Patch     string `json:"patch,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// WorkItem is an ordered, disjoint slice of a PR's changed files
// processed as one unit. Immutable once produced by the split step.
type WorkItem struct {
	Index     int           `json:"index"`
	Files     []ChangedFile `json:"files"`
	SizeBytes int           `json:"size_bytes"`
}
