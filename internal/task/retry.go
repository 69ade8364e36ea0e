package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// RetryConfig tunes the workflow-state retry budget
type RetryConfig struct {
	// ExtraAttempts is the number of retries after the first attempt.
	ExtraAttempts int
	// Base is the initial backoff duration.
	Base time.Duration
	// Multiplier is applied to the backoff on each retry.
	Multiplier float64
}

// DefaultRetryConfig returns the standard workflow-state retry budget
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		ExtraAttempts: 2,
		Base:          3 * time.Second,
		Multiplier:    1.5,
	}
}

// retryable reports whether an invocation outcome belongs to the
// transient-fault class: a transient error, or a 429/500 status from
// the collaborator. Fatal errors and generic non-success statuses are
// escalated immediately.
func retryable(res domain.TaskResult, err error) bool {
	if err != nil {
		return IsTransient(err)
	}
	return res.StatusCode == 429 || res.StatusCode == 500
}

// InvokeWithRetry invokes a task, retrying transient-fault outcomes
// with exponential backoff until the budget is exhausted. The last
// result and error are returned either way.
func InvokeWithRetry(ctx context.Context, inv Invoker, taskName string, input json.RawMessage, cfg RetryConfig) (domain.TaskResult, error) {
	backoff := cfg.Base

	var res domain.TaskResult
	var err error
	for attempt := 0; ; attempt++ {
		res, err = inv.Invoke(ctx, taskName, input)
		if err == nil && res.OK() {
			return res, nil
		}
		if !retryable(res, err) || attempt >= cfg.ExtraAttempts {
			return res, err
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
	}
}
