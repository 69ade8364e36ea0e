package workflow

import (
	"strings"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// RateLimitMarker is the error text collaborators emit when the
// upstream model throttles a request.
const RateLimitMarker = "rate limit"

// IsRateLimited reports whether a result represents a rate-limit-class
// failure: a 429 status, the designated error kind, or the marker text
// anywhere in the error message or payload.
func IsRateLimited(r domain.TaskResult) bool {
	if r.StatusCode == 429 || r.ErrorKind == domain.ErrorKindRateLimited {
		return true
	}
	if strings.Contains(strings.ToLower(r.ErrorMessage), RateLimitMarker) {
		return true
	}
	return strings.Contains(strings.ToLower(string(r.Body)), RateLimitMarker)
}

// Classify partitions one round of task results into succeeded and
// failed sets. A result is failed if its status is 500 or 429, or its
// payload carries the rate-limit marker. The partition is strict and
// order-preserving: every result lands in exactly one set.
func Classify(results []domain.TaskResult) domain.ClassifiedResults {
	var cls domain.ClassifiedResults
	for _, r := range results {
		if r.StatusCode == 500 || r.StatusCode == 429 || IsRateLimited(r) {
			cls.Failed = append(cls.Failed, r)
		} else {
			cls.Succeeded = append(cls.Succeeded, r)
		}
	}
	return cls
}

// Merge concatenates first-pass successes and retry-pass outcomes into
// the single ordered view aggregation consumes. The output length is
// always len(succeeded) + len(retried).
func Merge(succeeded, retried []domain.TaskResult) domain.MergedResult {
	merged := make([]domain.TaskResult, 0, len(succeeded)+len(retried))
	merged = append(merged, succeeded...)
	merged = append(merged, retried...)
	return domain.MergedResult{Results: merged, Retried: len(retried)}
}
