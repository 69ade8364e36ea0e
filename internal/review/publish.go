package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/notify"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

// PostComment publishes the review summary as a PR comment.
func (c *Collaborators) PostComment(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	in, report, err := decodePublishInput(input)
	if err != nil {
		return domain.TaskResult{}, err
	}

	status, err := c.gh.PostIssueComment(ctx, in.PR.Owner, in.PR.Repo, in.PR.Number, report.PRComment)
	if err != nil {
		log.Printf("[review] %s/%s#%d: posting comment: %v", in.PR.Owner, in.PR.Repo, in.PR.Number, err)
		return githubFailure(err), nil
	}

	// GitHub answers comment creation with 201; the workflow's success
	// contract is 200.
	if status >= 200 && status < 300 {
		status = 200
	}
	return domain.TaskResult{StatusCode: status}, nil
}

// SendNotification pushes the review outcome to the chat channel.
func (c *Collaborators) SendNotification(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	in, report, err := decodePublishInput(input)
	if err != nil {
		return domain.TaskResult{}, err
	}

	notifType := notify.NotifySuccess
	switch report.OverallSeverity() {
	case domain.SeverityCritical:
		notifType = notify.NotifyError
	case domain.SeverityMajor:
		notifType = notify.NotifyWarning
	}

	err = c.notifier.Send(notify.Notification{
		Title:   fmt.Sprintf("Review: %s/%s#%d", in.PR.Owner, in.PR.Repo, in.PR.Number),
		Message: report.ChatMessage,
		Type:    notifType,
		PRURL:   in.PR.URL(),
	})
	if err != nil {
		log.Printf("[review] %s/%s#%d: sending notification: %v", in.PR.Owner, in.PR.Repo, in.PR.Number, err)
		return notifyFailure(err), nil
	}
	return domain.TaskResult{StatusCode: 200}, nil
}

// HandleError reports a failed execution to the chat channel.
func (c *Collaborators) HandleError(ctx context.Context, input json.RawMessage) (domain.TaskResult, error) {
	var in struct {
		ExecutionID string       `json:"execution_id"`
		PR          domain.PRRef `json:"pr"`
		Error       string       `json:"error"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return domain.TaskResult{}, fmt.Errorf("decoding error payload: %w", err)
	}

	err := c.notifier.Send(notify.Notification{
		Title:       fmt.Sprintf("Review failed: %s/%s#%d", in.PR.Owner, in.PR.Repo, in.PR.Number),
		Message:     in.Error,
		Type:        notify.NotifyError,
		ExecutionID: in.ExecutionID,
		PRURL:       in.PR.URL(),
	})
	if err != nil {
		log.Printf("[review] %s: reporting failure: %v", in.ExecutionID, err)
		return notifyFailure(err), nil
	}
	return domain.TaskResult{StatusCode: 200}, nil
}

func decodePublishInput(input json.RawMessage) (workflow.PublishInput, *AggregateReport, error) {
	var in workflow.PublishInput
	if err := json.Unmarshal(input, &in); err != nil {
		return in, nil, fmt.Errorf("decoding publish input: %w", err)
	}
	var report AggregateReport
	if err := json.Unmarshal(in.Summary, &report); err != nil {
		return in, nil, fmt.Errorf("decoding aggregate report: %w", err)
	}
	return in, &report, nil
}

func notifyFailure(err error) domain.TaskResult {
	if status := notify.StatusCode(err); status == 429 {
		return domain.TaskResult{StatusCode: 429, ErrorKind: domain.ErrorKindRateLimited, ErrorMessage: err.Error()}
	}
	return domain.TaskResult{StatusCode: 500, ErrorKind: domain.ErrorKindTransient, ErrorMessage: err.Error()}
}
