package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// Collaborator task names. All external work goes through one of these.
const (
	TaskInitialProcessing = "initialProcessing"
	TaskSplitPR           = "splitPR"
	TaskProcessChunk      = "processChunk"
	TaskAggregateResults  = "aggregateResults"
	TaskPostComment       = "postComment"
	TaskSendNotification  = "sendNotification"
	TaskHandleError       = "handleError"
)

// Invoker executes a named unit of work. Implementations must be
// idempotent under retry: the orchestrator calls a task more than
// once after a transient failure.
type Invoker interface {
	Invoke(ctx context.Context, task string, input json.RawMessage) (domain.TaskResult, error)
}

// Func is a single collaborator implementation
type Func func(ctx context.Context, input json.RawMessage) (domain.TaskResult, error)

// Registry maps task names to collaborator implementations
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds a collaborator to a task name
func (r *Registry) Register(task string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[task] = fn
}

// Invoke dispatches to the registered collaborator
func (r *Registry) Invoke(ctx context.Context, task string, input json.RawMessage) (domain.TaskResult, error) {
	r.mu.RLock()
	fn, ok := r.funcs[task]
	r.mu.RUnlock()

	if !ok {
		return domain.TaskResult{}, fmt.Errorf("no collaborator registered for task %q", task)
	}
	return fn(ctx, input)
}
