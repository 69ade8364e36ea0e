package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/llm"
	"github.com/muylucir/pr-review-orchestrator/internal/prompt"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

// modelReview is the JSON shape the prompt asks the model for.
type modelReview struct {
	Summary      ChangeSummary   `json:"summary"`
	Severity     domain.Severity `json:"severity"`
	ReviewPoints []Suggestion    `json:"review_points"`
}

// ProcessChunk reviews every file of one work item with the model
// backend. A throttled backend fails the whole chunk with 429 so the
// scheduler can back off; any other per-file failure degrades to an
// empty review for that file.
func (c *Collaborators) ProcessChunk(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	var in workflow.ChunkInput
	if err := json.Unmarshal(input, &in); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decoding chunk input: %w", err)
	}

	system, err := c.prompts.SystemPrompt()
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("loading system prompt: %w", err)
	}

	reviews := make([]FileReview, 0, len(in.Chunk.Files))
	for _, file := range in.Chunk.Files {
		fr, err := c.reviewFile(ctx, system, file, relatedPaths(in.Chunk.Files, file.Path))
		if err != nil {
			if llm.IsRateLimit(err) {
				return domain.TaskResult{
					StatusCode:   429,
					ErrorKind:    domain.ErrorKindRateLimited,
					ErrorMessage: err.Error(),
				}, nil
			}
			var apiErr *llm.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
				return domain.TaskResult{
					StatusCode:   500,
					ErrorKind:    domain.ErrorKindTransient,
					ErrorMessage: err.Error(),
				}, nil
			}
			log.Printf("[review] chunk %d: reviewing %s: %v", in.Chunk.Index, file.Path, err)
			fr = FileReview{
				Path:     file.Path,
				Language: DetectLanguage(file.Path),
				Severity: domain.SeverityNormal,
			}
		}
		reviews = append(reviews, fr)
	}

	var all []Suggestion
	for _, r := range reviews {
		all = append(all, r.Suggestions...)
	}

	report := ChunkReport{
		ChunkIndex: in.Chunk.Index,
		Severity:   MaxSeverity(all),
		Results:    reviews,
	}
	body, err := json.Marshal(report)
	if err != nil {
		return domain.TaskResult{}, fmt.Errorf("encoding chunk report: %w", err)
	}
	return domain.TaskResult{ChunkIndex: in.Chunk.Index, StatusCode: 200, Body: body}, nil
}

func (c *Collaborators) reviewFile(ctx context.Context, system string, file domain.ChangedFile, related []string) (FileReview, error) {
	language := DetectLanguage(file.Path)

	userPrompt, err := c.prompts.BuildFilePrompt(prompt.FileData{
		Path:         file.Path,
		Language:     language,
		Patch:        file.Patch,
		RelatedFiles: related,
	})
	if err != nil {
		return FileReview{}, fmt.Errorf("building prompt: %w", err)
	}

	resp, err := c.reviewer.Complete(ctx, llm.Request{
		System:    system,
		Prompt:    userPrompt,
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return FileReview{}, err
	}

	parsed, err := parseModelReview(resp.Content)
	if err != nil {
		return FileReview{}, fmt.Errorf("parsing model response: %w", err)
	}

	for i := range parsed.ReviewPoints {
		parsed.ReviewPoints[i].File = file.Path
	}

	severity := parsed.Severity
	if severity == "" {
		severity = MaxSeverity(parsed.ReviewPoints)
	}

	return FileReview{
		Path:        file.Path,
		Language:    language,
		Summary:     parsed.Summary,
		Severity:    severity,
		Suggestions: parsed.ReviewPoints,
	}, nil
}

// parseModelReview decodes the model's JSON answer, tolerating a
// fenced code block around it.
func parseModelReview(content string) (modelReview, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var parsed modelReview
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return modelReview{}, err
	}
	return parsed, nil
}

func relatedPaths(files []domain.ChangedFile, current string) []string {
	var related []string
	for _, f := range files {
		if f.Path != current {
			related = append(related, f.Path)
		}
	}
	return related
}
