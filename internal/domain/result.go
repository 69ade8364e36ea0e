package domain

import "encoding/json"

// TaskResult is the outcome of a single collaborator invocation
type TaskResult struct {
	ChunkIndex   int             `json:"chunk_index"`
	StatusCode   int             `json:"status_code"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
}

// OK returns true when the collaborator reported its success status
func (r TaskResult) OK() bool {
	return r.StatusCode == 200
}

// ClassifiedResults partitions one round of task results into the
// succeeded and failed sets. The partition is strict: every result
// appears in exactly one set, order preserved within each.
type ClassifiedResults struct {
	Succeeded []TaskResult
	Failed    []TaskResult
}

// MergedResult is the order-stable concatenation of first-pass
// successes and retry-pass outcomes. Its length always equals the
// number of work items dispatched: a permanently failing item is
// represented by its last failing result, never dropped.
type MergedResult struct {
	Results []TaskResult
	// Retried counts the items that went through the retry pass.
	Retried int
}

// PublicationOutcome holds the independent branch results of
// publishing the review. A nil status means the branch never
// completed its own check.
type PublicationOutcome struct {
	CommentStatus      *int
	NotificationStatus *int
}

// Success requires both branch statuses to be present and equal to 200
func (p PublicationOutcome) Success() bool {
	return p.CommentStatus != nil && *p.CommentStatus == 200 &&
		p.NotificationStatus != nil && *p.NotificationStatus == 200
}
