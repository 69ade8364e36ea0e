package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/task"
)

// Publisher runs the two publication branches - comment posting and
// chat notification - concurrently. Each branch performs its own
// success check; a failing branch escalates through the shared error
// handler without blocking the other branch.
type Publisher struct {
	invoker task.Invoker
	retry   task.RetryConfig
}

// NewPublisher creates the publication coordinator
func NewPublisher(invoker task.Invoker, retry task.RetryConfig) *Publisher {
	return &Publisher{invoker: invoker, retry: retry}
}

// branchError describes a failed publication branch
type branchError struct {
	taskName string
	status   int
	err      error
}

func (e *branchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.taskName, e.err)
	}
	return fmt.Sprintf("%s returned status %d", e.taskName, e.status)
}

// Publish runs both branches to completion and returns their statuses.
// escalate is called once per failing branch; the caller decides how
// error handling is deduplicated across the execution.
func (p *Publisher) Publish(ctx context.Context, input PublishInput, escalate func(error)) domain.PublicationOutcome {
	payload, err := json.Marshal(input)
	if err != nil {
		escalate(fmt.Errorf("encoding publish input: %w", err))
		return domain.PublicationOutcome{}
	}

	var outcome domain.PublicationOutcome
	var wg sync.WaitGroup

	branch := func(taskName string, status **int) {
		defer wg.Done()

		res, err := task.InvokeWithRetry(ctx, p.invoker, taskName, payload, p.retry)
		if err != nil {
			log.Printf("[publish] %s failed: %v", taskName, err)
			escalate(&branchError{taskName: taskName, err: err})
			return
		}

		code := res.StatusCode
		*status = &code
		if code != 200 {
			log.Printf("[publish] %s returned status %d", taskName, code)
			escalate(&branchError{taskName: taskName, status: code})
		}
	}

	wg.Add(2)
	go branch(task.TaskPostComment, &outcome.CommentStatus)
	go branch(task.TaskSendNotification, &outcome.NotificationStatus)
	wg.Wait()

	return outcome
}
