package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/github"
	"github.com/muylucir/pr-review-orchestrator/internal/llm"
	"github.com/muylucir/pr-review-orchestrator/internal/notify"
	"github.com/muylucir/pr-review-orchestrator/internal/prompt"
	"github.com/muylucir/pr-review-orchestrator/internal/task"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

// GitHubClient is the subset of the GitHub API the collaborators use.
type GitHubClient interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]domain.ChangedFile, error)
	PostIssueComment(ctx context.Context, owner, repo string, number int, comment string) (int, error)
}

// Config tunes the collaborators.
type Config struct {
	ChunkMaxFiles int
	ChunkMaxBytes int
	MaxTokens     int
}

// Collaborators holds the external services the review tasks call out to.
type Collaborators struct {
	gh       GitHubClient
	reviewer llm.Reviewer
	prompts  *prompt.Loader
	notifier notify.Notifier
	cfg      Config
}

// NewCollaborators wires the review tasks to their backends.
func NewCollaborators(gh GitHubClient, reviewer llm.Reviewer, prompts *prompt.Loader, notifier notify.Notifier, cfg Config) *Collaborators {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Collaborators{
		gh:       gh,
		reviewer: reviewer,
		prompts:  prompts,
		notifier: notifier,
		cfg:      cfg,
	}
}

// RegisterAll binds every collaborator to its task name.
func (c *Collaborators) RegisterAll(reg *task.Registry) {
	reg.Register(task.TaskInitialProcessing, c.InitialProcessing)
	reg.Register(task.TaskSplitPR, c.SplitPR)
	reg.Register(task.TaskProcessChunk, c.ProcessChunk)
	reg.Register(task.TaskAggregateResults, c.AggregateResults)
	reg.Register(task.TaskPostComment, c.PostComment)
	reg.Register(task.TaskSendNotification, c.SendNotification)
	reg.Register(task.TaskHandleError, c.HandleError)
}

// InitialProcessing fetches the PR metadata and its changed files.
func (c *Collaborators) InitialProcessing(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	var req domain.ReviewRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decoding review request: %w", err)
	}

	pr, err := c.gh.GetPullRequest(ctx, req.Owner, req.Repo, req.Number)
	if err != nil {
		return githubFailure(err), nil
	}

	files, err := c.gh.GetChangedFiles(ctx, req.Owner, req.Repo, req.Number)
	if err != nil {
		return githubFailure(err), nil
	}

	log.Printf("[review] %s/%s#%d: fetched %d changed files", req.Owner, req.Repo, req.Number, len(files))

	body, err := json.Marshal(workflow.InitResult{
		PR: domain.PRRef{
			Platform: req.Platform,
			Owner:    req.Owner,
			Repo:     req.Repo,
			Number:   req.Number,
			Title:    pr.Title,
		},
		Files: files,
	})
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("encoding init result: %w", err)
	}
	return domain.TaskResult{StatusCode: 200, Body: body}, nil
}

// SplitPR groups the changed files into bounded work items.
func (c *Collaborators) SplitPR(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	var init workflow.InitResult
	if err := json.Unmarshal(input, &init); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decoding init result: %w", err)
	}

	chunks := BuildWorkItems(init.Files, c.cfg.ChunkMaxFiles, c.cfg.ChunkMaxBytes)
	log.Printf("[review] %s/%s#%d: %d files split into %d chunks",
		init.PR.Owner, init.PR.Repo, init.PR.Number, len(init.Files), len(chunks))

	body, err := json.Marshal(workflow.SplitResult{Chunks: chunks, TotalFiles: len(init.Files)})
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("encoding split result: %w", err)
	}
	return domain.TaskResult{StatusCode: 200, Body: body}, nil
}

// githubFailure maps a GitHub client error to a task result the
// classifier understands.
func githubFailure(err error) domain.TaskResult {
	status := github.StatusCode(err)
	switch {
	case status == 429:
		return domain.TaskResult{StatusCode: 429, ErrorKind: domain.ErrorKindRateLimited, ErrorMessage: err.Error()}
	case status >= 500:
		return domain.TaskResult{StatusCode: status, ErrorKind: domain.ErrorKindTransient, ErrorMessage: err.Error()}
	case status != 0:
		return domain.TaskResult{StatusCode: status, ErrorKind: domain.ErrorKindPermanent, ErrorMessage: err.Error()}
	default:
		// Network-level failure, worth retrying.
		return domain.TaskResult{StatusCode: 500, ErrorKind: domain.ErrorKindTransient, ErrorMessage: err.Error()}
	}
}
