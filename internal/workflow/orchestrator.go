package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/task"
)

// Store is the persistence surface the orchestrator needs: execution
// rows, the write-once stage journal, and the task-result audit trail.
type Store interface {
	CreateExecution(e *domain.Execution) error
	GetExecution(id string) (*domain.Execution, error)
	UpdateStage(id string, stage domain.Stage) error
	FinishExecution(id string, status domain.ExecutionStatus, errMsg string) error
	JournalStage(executionID string, stage domain.Stage, payload []byte) error
	GetJournal(executionID string, stage domain.Stage) ([]byte, bool, error)
	RecordTaskResult(executionID string, pass int, taskName string, r domain.TaskResult) error
}

// Event is a stage transition or terminal verdict, for live observers
type Event struct {
	ExecutionID string                 `json:"execution_id"`
	Stage       domain.Stage           `json:"stage"`
	Status      domain.ExecutionStatus `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Time        time.Time              `json:"time"`
}

// EventSink receives workflow events
type EventSink interface {
	Emit(ev Event)
}

// NoopSink discards events
type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// Config tunes the orchestrator. Zero values fall back to the
// documented defaults.
type Config struct {
	ChunkThreshold       int
	FirstPassConcurrency int
	RetryPassConcurrency int
	RetryPassDelay       time.Duration
	ItemRetryAttempts    int
	ItemRetryDelay       time.Duration
	ItemRetryMultiplier  float64
	StateRetry           task.RetryConfig
	ExecutionTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkThreshold <= 0 {
		c.ChunkThreshold = 5
	}
	if c.FirstPassConcurrency <= 0 {
		c.FirstPassConcurrency = 3
	}
	if c.RetryPassConcurrency <= 0 {
		c.RetryPassConcurrency = 1
	}
	if c.RetryPassDelay <= 0 {
		c.RetryPassDelay = 2 * time.Second
	}
	if c.StateRetry.Multiplier <= 0 {
		c.StateRetry = task.DefaultRetryConfig()
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = 30 * time.Minute
	}
	return c
}

// Orchestrator is the top-level state machine. It exclusively owns
// execution state transitions; the scheduler and retry coordinator
// return results upward and never touch the execution record.
type Orchestrator struct {
	invoker   task.Invoker
	store     Store
	cfg       Config
	scheduler *Scheduler
	retrier   *RetryCoordinator
	publisher *Publisher
	events    EventSink

	wg sync.WaitGroup
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithEventSink wires a live event observer
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) {
		o.events = sink
	}
}

// New creates an orchestrator
func New(invoker task.Invoker, store Store, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()

	scheduler := NewScheduler(invoker, SchedulerConfig{
		ItemRetryAttempts:   cfg.ItemRetryAttempts,
		ItemRetryDelay:      cfg.ItemRetryDelay,
		ItemRetryMultiplier: cfg.ItemRetryMultiplier,
	})

	o := &Orchestrator{
		invoker:   invoker,
		store:     store,
		cfg:       cfg,
		scheduler: scheduler,
		retrier:   NewRetryCoordinator(scheduler, cfg.RetryPassDelay, cfg.RetryPassConcurrency),
		publisher: NewPublisher(invoker, cfg.StateRetry),
		events:    NoopSink{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartReview creates a new execution for the request and runs it
// asynchronously. Returns the execution id.
func (o *Orchestrator) StartReview(req domain.ReviewRequest) (string, error) {
	e := &domain.Execution{
		ID: uuid.NewString(),
		PR: domain.PRRef{
			Platform: req.Platform,
			Owner:    req.Owner,
			Repo:     req.Repo,
			Number:   req.Number,
		},
		Stage:     domain.StageInit,
		Status:    domain.ExecutionRunning,
		StartedAt: time.Now(),
	}

	if err := o.store.CreateExecution(e); err != nil {
		return "", fmt.Errorf("creating execution: %w", err)
	}

	log.Printf("[orchestrator] %s: review started for %s/%s#%d", e.ID, req.Owner, req.Repo, req.Number)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(e.ID)
	}()

	return e.ID, nil
}

// Resume re-drives a non-terminal execution after a restart. The
// stage journal guarantees completed collaborators are not re-invoked.
func (o *Orchestrator) Resume(executionID string) {
	log.Printf("[orchestrator] %s: resuming", executionID)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(executionID)
	}()
}

// Wait blocks until all in-flight executions reach a terminal state
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run drives one execution from its raw request to Success or Failed.
// Any unrecovered fault funnels through error handling exactly once.
func (o *Orchestrator) run(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ExecutionTimeout)
	defer cancel()

	e, err := o.store.GetExecution(id)
	if err != nil {
		log.Printf("[orchestrator] %s: loading execution: %v", id, err)
		return
	}
	if e.Status.Terminal() {
		return
	}

	var once sync.Once
	escalate := func(cause error) {
		once.Do(func() {
			o.errorHandling(id, e.PR, cause)
		})
	}

	outcome, err := o.pipeline(ctx, e, escalate)
	if err != nil {
		escalate(err)
		o.finish(id, domain.ExecutionFailed, err.Error())
		return
	}

	// Finalize: both publication branches must report the success
	// status. Error handling already ran for a failed branch; this
	// only records the terminal state.
	o.transition(id, domain.StageFinalize)
	if outcome.Success() {
		o.finish(id, domain.ExecutionSuccess, "")
	} else {
		o.finish(id, domain.ExecutionFailed, "publication incomplete")
	}
}

// pipeline runs Init through Publish, returning the publication
// outcome for the final verdict.
func (o *Orchestrator) pipeline(ctx context.Context, e *domain.Execution, escalate func(error)) (domain.PublicationOutcome, error) {
	var outcome domain.PublicationOutcome

	rawReq, err := json.Marshal(domain.ReviewRequest{
		Platform: e.PR.Platform,
		Owner:    e.PR.Owner,
		Repo:     e.PR.Repo,
		Number:   e.PR.Number,
	})
	if err != nil {
		return outcome, fmt.Errorf("encoding request: %w", err)
	}

	initBody, err := o.stage(ctx, e.ID, domain.StageInit, task.TaskInitialProcessing, rawReq)
	if err != nil {
		return outcome, fmt.Errorf("initial processing: %w", err)
	}
	var init InitResult
	if err := json.Unmarshal(initBody, &init); err != nil {
		return outcome, fmt.Errorf("decoding initial processing output: %w", err)
	}

	splitBody, err := o.stage(ctx, e.ID, domain.StageSplit, task.TaskSplitPR, initBody)
	if err != nil {
		return outcome, fmt.Errorf("split: %w", err)
	}
	var split SplitResult
	if err := json.Unmarshal(splitBody, &split); err != nil {
		return outcome, fmt.Errorf("decoding split output: %w", err)
	}

	// SizeCheck is a pure decision on the total file count.
	o.transition(e.ID, domain.StageSizeCheck)

	var chunks chunkOutcome
	if split.TotalFiles > o.cfg.ChunkThreshold {
		chunks, err = o.chunkPipeline(ctx, e.ID, init.PR, split.Chunks)
	} else {
		chunks, err = o.singleChunk(ctx, e.ID, init.PR, init.Files)
	}
	if err != nil {
		return outcome, err
	}

	aggInput, err := json.Marshal(AggregateInput{PR: init.PR, TotalFiles: split.TotalFiles, Results: chunks.Results})
	if err != nil {
		return outcome, fmt.Errorf("encoding aggregate input: %w", err)
	}
	aggBody, err := o.stage(ctx, e.ID, domain.StageAggregate, task.TaskAggregateResults, aggInput)
	if err != nil {
		return outcome, fmt.Errorf("aggregate: %w", err)
	}

	return o.publish(ctx, e.ID, init.PR, aggBody, escalate)
}

// stage runs one journaled collaborator state: replay from the journal
// if present, otherwise invoke with the uniform state retry budget and
// journal the output.
func (o *Orchestrator) stage(ctx context.Context, id string, stage domain.Stage, taskName string, input json.RawMessage) (json.RawMessage, error) {
	if body, ok, err := o.store.GetJournal(id, stage); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	} else if ok {
		return body, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.transition(id, stage)

	res, err := task.InvokeWithRetry(ctx, o.invoker, taskName, input, o.cfg.StateRetry)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("%s returned status %d: %s", taskName, res.StatusCode, res.ErrorMessage)
	}

	if err := o.store.JournalStage(id, stage, res.Body); err != nil {
		return nil, fmt.Errorf("journaling %s: %w", stage, err)
	}
	return res.Body, nil
}

// chunkPipeline runs dispatch, classification, the single retry pass,
// and the merge, journaling the merged outcome.
func (o *Orchestrator) chunkPipeline(ctx context.Context, id string, pr domain.PRRef, items []domain.WorkItem) (chunkOutcome, error) {
	if outcome, ok, err := o.replayChunks(id, domain.StageChunkPipeline); err != nil || ok {
		return outcome, err
	}

	o.transition(id, domain.StageChunkPipeline)

	first, err := o.scheduler.Dispatch(ctx, pr, items, o.cfg.FirstPassConcurrency)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("chunk dispatch: %w", err)
	}
	o.audit(id, 1, first)

	cls := Classify(first)
	merged, retried, err := o.retrier.Run(ctx, pr, items, cls)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("chunk retry: %w", err)
	}
	o.audit(id, 2, retried)

	outcome := chunkOutcome{Results: merged.Results, Retried: merged.Retried}
	return outcome, o.journalChunks(id, domain.StageChunkPipeline, outcome)
}

// singleChunk processes the whole PR as one work item through the same
// invoker the chunk pipeline uses.
func (o *Orchestrator) singleChunk(ctx context.Context, id string, pr domain.PRRef, files []domain.ChangedFile) (chunkOutcome, error) {
	if outcome, ok, err := o.replayChunks(id, domain.StageSingleChunk); err != nil || ok {
		return outcome, err
	}

	o.transition(id, domain.StageSingleChunk)

	size := 0
	for _, f := range files {
		size += len(f.Patch)
	}
	item := domain.WorkItem{Index: 0, Files: files, SizeBytes: size}

	results, err := o.scheduler.Dispatch(ctx, pr, []domain.WorkItem{item}, 1)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("single chunk dispatch: %w", err)
	}
	o.audit(id, 1, results)

	outcome := chunkOutcome{Results: results}
	return outcome, o.journalChunks(id, domain.StageSingleChunk, outcome)
}

// publish runs both publication branches, journaling their statuses
func (o *Orchestrator) publish(ctx context.Context, id string, pr domain.PRRef, summary json.RawMessage, escalate func(error)) (domain.PublicationOutcome, error) {
	if payload, ok, err := o.store.GetJournal(id, domain.StagePublish); err != nil {
		return domain.PublicationOutcome{}, fmt.Errorf("reading journal: %w", err)
	} else if ok {
		var journaled publishOutcome
		if err := json.Unmarshal(payload, &journaled); err != nil {
			return domain.PublicationOutcome{}, fmt.Errorf("decoding journaled publish outcome: %w", err)
		}
		return domain.PublicationOutcome{CommentStatus: journaled.CommentStatus, NotificationStatus: journaled.NotificationStatus}, nil
	}

	o.transition(id, domain.StagePublish)

	outcome := o.publisher.Publish(ctx, PublishInput{PR: pr, Summary: summary}, escalate)

	payload, err := json.Marshal(publishOutcome{CommentStatus: outcome.CommentStatus, NotificationStatus: outcome.NotificationStatus})
	if err != nil {
		return outcome, fmt.Errorf("encoding publish outcome: %w", err)
	}
	if err := o.store.JournalStage(id, domain.StagePublish, payload); err != nil {
		return outcome, fmt.Errorf("journaling publish: %w", err)
	}
	return outcome, nil
}

// errorHandling invokes the error-reporting collaborator. It runs on a
// detached context so a timed-out execution can still report, and the
// caller guarantees it runs at most once per execution.
func (o *Orchestrator) errorHandling(id string, pr domain.PRRef, cause error) {
	o.transition(id, domain.StageErrorHandling)
	log.Printf("[orchestrator] %s: error handling: %v", id, cause)

	input, err := json.Marshal(map[string]interface{}{
		"execution_id": id,
		"pr":           pr,
		"error":        cause.Error(),
	})
	if err != nil {
		log.Printf("[orchestrator] %s: encoding error payload: %v", id, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := o.invoker.Invoke(ctx, task.TaskHandleError, input); err != nil {
		log.Printf("[orchestrator] %s: handleError collaborator failed: %v", id, err)
	}
}

func (o *Orchestrator) replayChunks(id string, stage domain.Stage) (chunkOutcome, bool, error) {
	payload, ok, err := o.store.GetJournal(id, stage)
	if err != nil {
		return chunkOutcome{}, false, fmt.Errorf("reading journal: %w", err)
	}
	if !ok {
		return chunkOutcome{}, false, nil
	}
	var outcome chunkOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return chunkOutcome{}, false, fmt.Errorf("decoding journaled chunks: %w", err)
	}
	return outcome, true, nil
}

func (o *Orchestrator) journalChunks(id string, stage domain.Stage, outcome chunkOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding chunk outcome: %w", err)
	}
	if err := o.store.JournalStage(id, stage, payload); err != nil {
		return fmt.Errorf("journaling %s: %w", stage, err)
	}
	return nil
}

func (o *Orchestrator) audit(id string, pass int, results []domain.TaskResult) {
	for _, r := range results {
		if err := o.store.RecordTaskResult(id, pass, task.TaskProcessChunk, r); err != nil {
			log.Printf("[orchestrator] %s: recording task result: %v", id, err)
		}
	}
}

func (o *Orchestrator) transition(id string, stage domain.Stage) {
	if err := o.store.UpdateStage(id, stage); err != nil {
		log.Printf("[orchestrator] %s: updating stage: %v", id, err)
	}
	o.events.Emit(Event{ExecutionID: id, Stage: stage, Status: domain.ExecutionRunning, Time: time.Now()})
}

func (o *Orchestrator) finish(id string, status domain.ExecutionStatus, msg string) {
	if err := o.store.FinishExecution(id, status, msg); err != nil {
		log.Printf("[orchestrator] %s: finishing: %v", id, err)
		return
	}
	log.Printf("[orchestrator] %s: %s", id, status)
	o.events.Emit(Event{ExecutionID: id, Status: status, Message: msg, Time: time.Now()})
}
