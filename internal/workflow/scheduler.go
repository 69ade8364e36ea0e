package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/task"
)

// SchedulerConfig tunes chunk dispatch
type SchedulerConfig struct {
	// ItemRetryAttempts is the number of in-place retries of a
	// rate-limited item beyond its initial invocation.
	ItemRetryAttempts int
	// ItemRetryDelay is the delay before the first in-place retry.
	ItemRetryDelay time.Duration
	// ItemRetryMultiplier scales the delay on each further retry.
	ItemRetryMultiplier float64
}

// Scheduler dispatches work items to the task invoker under a
// concurrency bound, returning exactly one result per item with the
// item-to-result association preserved by index.
type Scheduler struct {
	invoker task.Invoker
	cfg     SchedulerConfig
}

// NewScheduler creates a chunk scheduler
func NewScheduler(invoker task.Invoker, cfg SchedulerConfig) *Scheduler {
	if cfg.ItemRetryAttempts <= 0 {
		cfg.ItemRetryAttempts = 3
	}
	if cfg.ItemRetryMultiplier <= 0 {
		cfg.ItemRetryMultiplier = 2.0
	}
	return &Scheduler{invoker: invoker, cfg: cfg}
}

// Dispatch processes the items with at most concurrency invocations in
// flight. Completion order is not guaranteed; results[i] always
// corresponds to items[i]. Item failures are captured in the returned
// results, never as a dispatch error - only context cancellation
// aborts the whole call.
func (s *Scheduler) Dispatch(ctx context.Context, pr domain.PRRef, items []domain.WorkItem, concurrency int) ([]domain.TaskResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]domain.TaskResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.processItem(gctx, pr, item)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// processItem invokes processChunk for one work item, retrying
// rate-limit-class failures in place. When the budget is exhausted the
// result carries the designated rate-limit error kind instead of
// failing the dispatch.
func (s *Scheduler) processItem(ctx context.Context, pr domain.PRRef, item domain.WorkItem) domain.TaskResult {
	input, err := json.Marshal(ChunkInput{PR: pr, Chunk: item})
	if err != nil {
		return domain.TaskResult{
			ChunkIndex:   item.Index,
			StatusCode:   500,
			ErrorKind:    domain.ErrorKindPermanent,
			ErrorMessage: fmt.Sprintf("encoding chunk input: %v", err),
		}
	}

	delay := s.cfg.ItemRetryDelay

	var res domain.TaskResult
	for retry := 0; ; retry++ {
		res = s.invokeOnce(ctx, input, item.Index)
		if !IsRateLimited(res) {
			return res
		}
		if retry >= s.cfg.ItemRetryAttempts {
			res.ErrorKind = domain.ErrorKindRateLimited
			return res
		}

		log.Printf("[scheduler] chunk %d rate limited, retry %d/%d in %s", item.Index, retry+1, s.cfg.ItemRetryAttempts, delay)
		select {
		case <-ctx.Done():
			res.ErrorKind = domain.ErrorKindRateLimited
			return res
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * s.cfg.ItemRetryMultiplier)
	}
}

func (s *Scheduler) invokeOnce(ctx context.Context, input json.RawMessage, index int) domain.TaskResult {
	res, err := s.invoker.Invoke(ctx, task.TaskProcessChunk, input)
	if err != nil {
		kind := domain.ErrorKindPermanent
		if task.IsTransient(err) {
			kind = domain.ErrorKindTransient
		}
		res = domain.TaskResult{
			StatusCode:   500,
			ErrorKind:    kind,
			ErrorMessage: err.Error(),
		}
	}
	res.ChunkIndex = index
	return res
}
