package workflow

import (
	"encoding/json"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// Wire payloads exchanged between workflow stages and collaborators.
// Collaborators receive and return these as JSON bodies.

// InitResult is the initialProcessing output: the resolved PR and its
// changed files.
type InitResult struct {
	PR    domain.PRRef         `json:"pr"`
	Files []domain.ChangedFile `json:"files"`
}

// SplitResult is the splitPR output: the ordered work items and the
// total changed-file count used by the size check.
type SplitResult struct {
	Chunks     []domain.WorkItem `json:"chunks"`
	TotalFiles int               `json:"total_files"`
}

// ChunkInput is the processChunk input for one work item.
type ChunkInput struct {
	PR    domain.PRRef    `json:"pr"`
	Chunk domain.WorkItem `json:"chunk"`
}

// AggregateInput carries the merged, order-stable results into
// aggregation. Aggregate never sees the two-set classification.
type AggregateInput struct {
	PR         domain.PRRef        `json:"pr"`
	TotalFiles int                 `json:"total_files"`
	Results    []domain.TaskResult `json:"results"`
}

// PublishInput is the input to both publication branches.
type PublishInput struct {
	PR      domain.PRRef    `json:"pr"`
	Summary json.RawMessage `json:"summary"`
}

// chunkOutcome is the journaled output of the chunk pipeline and
// single-chunk stages.
type chunkOutcome struct {
	Results []domain.TaskResult `json:"results"`
	Retried int                 `json:"retried"`
}

// publishOutcome is the journaled output of the publish stage.
type publishOutcome struct {
	CommentStatus      *int `json:"comment_status,omitempty"`
	NotificationStatus *int `json:"notification_status,omitempty"`
}
