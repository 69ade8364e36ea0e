package workflow

import (
	"context"
	"log"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// RetryCoordinator re-dispatches first-pass failures through the
// scheduler, exactly once per execution, at reduced concurrency.
type RetryCoordinator struct {
	scheduler   *Scheduler
	delay       time.Duration
	concurrency int
}

// NewRetryCoordinator creates the single-shot retry pass
func NewRetryCoordinator(scheduler *Scheduler, delay time.Duration, concurrency int) *RetryCoordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &RetryCoordinator{scheduler: scheduler, delay: delay, concurrency: concurrency}
}

// Run merges the classified first-pass results with the retry-pass
// outcomes. With an empty failed set it is a pass-through: no delay,
// no dispatch, merged output equals the succeeded set. Retry outcomes
// are final - they are never re-classified or retried again.
//
// The returned retried slice mirrors what was re-dispatched so the
// caller can audit the second pass.
func (rc *RetryCoordinator) Run(ctx context.Context, pr domain.PRRef, items []domain.WorkItem, cls domain.ClassifiedResults) (domain.MergedResult, []domain.TaskResult, error) {
	if len(cls.Failed) == 0 {
		return Merge(cls.Succeeded, nil), nil, nil
	}

	// Map failed results back to their immutable work items.
	byIndex := make(map[int]domain.WorkItem, len(items))
	for _, item := range items {
		byIndex[item.Index] = item
	}
	failedItems := make([]domain.WorkItem, 0, len(cls.Failed))
	for _, r := range cls.Failed {
		if item, ok := byIndex[r.ChunkIndex]; ok {
			failedItems = append(failedItems, item)
		}
	}

	log.Printf("[retry] re-dispatching %d failed chunks after %s at concurrency %d", len(failedItems), rc.delay, rc.concurrency)
	select {
	case <-ctx.Done():
		return domain.MergedResult{}, nil, ctx.Err()
	case <-time.After(rc.delay):
	}

	dispatched, err := rc.scheduler.Dispatch(ctx, pr, failedItems, rc.concurrency)
	if err != nil {
		return domain.MergedResult{}, nil, err
	}

	outcomeByIndex := make(map[int]domain.TaskResult, len(dispatched))
	for _, r := range dispatched {
		outcomeByIndex[r.ChunkIndex] = r
	}

	// Every previously failed item appears exactly once, win or lose.
	// An item with no re-dispatch outcome keeps its last failing result.
	retried := make([]domain.TaskResult, 0, len(cls.Failed))
	for _, r := range cls.Failed {
		if outcome, ok := outcomeByIndex[r.ChunkIndex]; ok {
			retried = append(retried, outcome)
		} else {
			retried = append(retried, r)
		}
	}

	return Merge(cls.Succeeded, retried), retried, nil
}
