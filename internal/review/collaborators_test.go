package review

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/github"
	"github.com/muylucir/pr-review-orchestrator/internal/llm"
	"github.com/muylucir/pr-review-orchestrator/internal/notify"
	"github.com/muylucir/pr-review-orchestrator/internal/prompt"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
)

type fakeGitHub struct {
	pr       *github.PullRequest
	files    []domain.ChangedFile
	err      error
	comments []string
}

func (f *fakeGitHub) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return f.pr, f.err
}

func (f *fakeGitHub) GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]domain.ChangedFile, error) {
	return f.files, f.err
}

func (f *fakeGitHub) PostIssueComment(ctx context.Context, owner, repo string, number int, comment string) (int, error) {
	if f.err != nil {
		return github.StatusCode(f.err), f.err
	}
	f.comments = append(f.comments, comment)
	return 201, nil
}

type fakeReviewer struct {
	content string
	err     error
	calls   int
}

func (f *fakeReviewer) Name() string { return "fake" }

func (f *fakeReviewer) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content}, nil
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

const modelAnswer = `{
	"summary": {"functional_changes": ["added widget factory"], "architectural_changes": [], "technical_improvements": []},
	"severity": "MAJOR",
	"review_points": [
		{"category": "logic", "severity": "MAJOR", "line_number": 12, "description": "nil map write", "suggestion": "initialize the map"}
	]
}`

func testCollaborators(gh GitHubClient, reviewer llm.Reviewer, notifier notify.Notifier) *Collaborators {
	return NewCollaborators(gh, reviewer, prompt.NewLoader(), notifier, Config{
		ChunkMaxFiles: 3,
		ChunkMaxBytes: 100000,
		MaxTokens:     1024,
	})
}

func prRef() domain.PRRef {
	return domain.PRRef{Platform: domain.PlatformGitHub, Owner: "muylucir", Repo: "widgets", Number: 7, Title: "Add widgets"}
}

func TestInitialProcessing(t *testing.T) {
	gh := &fakeGitHub{
		pr:    &github.PullRequest{Number: 7, Title: "Add widgets"},
		files: []domain.ChangedFile{{Path: "a.go", Patch: "+x"}, {Path: "b.go", Patch: "+y"}},
	}
	c := testCollaborators(gh, &fakeReviewer{content: modelAnswer}, nil)

	input, _ := json.Marshal(domain.ReviewRequest{Platform: domain.PlatformGitHub, Owner: "muylucir", Repo: "widgets", Number: 7})
	res, err := c.InitialProcessing(context.Background(), input)
	if err != nil {
		t.Fatalf("InitialProcessing error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", res.StatusCode)
	}

	var out workflow.InitResult
	if err := json.Unmarshal(res.Body, &out); err != nil {
		t.Fatal(err)
	}
	if out.PR.Title != "Add widgets" {
		t.Errorf("PR.Title = %q, want %q", out.PR.Title, "Add widgets")
	}
	if len(out.Files) != 2 {
		t.Errorf("len(Files) = %d, want 2", len(out.Files))
	}
}

func TestInitialProcessing_RateLimitedUpstream(t *testing.T) {
	gh := &fakeGitHub{err: &github.APIError{StatusCode: 429, Body: "API rate limit exceeded"}}
	c := testCollaborators(gh, &fakeReviewer{}, nil)

	input, _ := json.Marshal(domain.ReviewRequest{Owner: "muylucir", Repo: "widgets", Number: 7})
	res, err := c.InitialProcessing(context.Background(), input)
	if err != nil {
		t.Fatalf("InitialProcessing error: %v", err)
	}
	if res.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", res.StatusCode)
	}
	if res.ErrorKind != domain.ErrorKindRateLimited {
		t.Errorf("ErrorKind = %q, want %q", res.ErrorKind, domain.ErrorKindRateLimited)
	}
}

func TestSplitPR(t *testing.T) {
	c := testCollaborators(&fakeGitHub{}, &fakeReviewer{}, nil)

	init := workflow.InitResult{PR: prRef(), Files: changedFiles(7, 10)}
	input, _ := json.Marshal(init)
	res, err := c.SplitPR(context.Background(), input)
	if err != nil {
		t.Fatalf("SplitPR error: %v", err)
	}

	var out workflow.SplitResult
	if err := json.Unmarshal(res.Body, &out); err != nil {
		t.Fatal(err)
	}
	if out.TotalFiles != 7 {
		t.Errorf("TotalFiles = %d, want 7", out.TotalFiles)
	}
	if len(out.Chunks) != 3 {
		t.Errorf("len(Chunks) = %d, want 3", len(out.Chunks))
	}
}

func TestProcessChunk(t *testing.T) {
	reviewer := &fakeReviewer{content: modelAnswer}
	c := testCollaborators(&fakeGitHub{}, reviewer, nil)

	input, _ := json.Marshal(workflow.ChunkInput{
		PR: prRef(),
		Chunk: domain.WorkItem{Index: 2, Files: []domain.ChangedFile{
			{Path: "pkg/a.go", Patch: "+foo"},
			{Path: "pkg/b.go", Patch: "+bar"},
		}},
	})
	res, err := c.ProcessChunk(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessChunk error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d: %s", res.StatusCode, res.ErrorMessage)
	}
	if res.ChunkIndex != 2 {
		t.Errorf("ChunkIndex = %d, want 2", res.ChunkIndex)
	}
	if reviewer.calls != 2 {
		t.Errorf("reviewer calls = %d, want 2 (one per file)", reviewer.calls)
	}

	var report ChunkReport
	if err := json.Unmarshal(res.Body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Severity != domain.SeverityMajor {
		t.Errorf("chunk severity = %q, want MAJOR", report.Severity)
	}
	if len(report.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(report.Results))
	}
	if report.Results[0].Language != "Go" {
		t.Errorf("Language = %q, want Go", report.Results[0].Language)
	}
	if report.Results[0].Suggestions[0].File != "pkg/a.go" {
		t.Errorf("suggestion file = %q, want pkg/a.go", report.Results[0].Suggestions[0].File)
	}
}

func TestProcessChunk_RateLimitFailsChunk(t *testing.T) {
	reviewer := &fakeReviewer{err: &llm.RateLimitError{}}
	c := testCollaborators(&fakeGitHub{}, reviewer, nil)

	input, _ := json.Marshal(workflow.ChunkInput{
		PR:    prRef(),
		Chunk: domain.WorkItem{Index: 0, Files: []domain.ChangedFile{{Path: "a.go", Patch: "+x"}}},
	})
	res, err := c.ProcessChunk(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessChunk error: %v", err)
	}
	if res.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", res.StatusCode)
	}
	if res.ErrorKind != domain.ErrorKindRateLimited {
		t.Errorf("ErrorKind = %q, want %q", res.ErrorKind, domain.ErrorKindRateLimited)
	}
}

func TestProcessChunk_GarbageAnswerDegrades(t *testing.T) {
	reviewer := &fakeReviewer{content: "I could not review this file, sorry."}
	c := testCollaborators(&fakeGitHub{}, reviewer, nil)

	input, _ := json.Marshal(workflow.ChunkInput{
		PR:    prRef(),
		Chunk: domain.WorkItem{Index: 0, Files: []domain.ChangedFile{{Path: "a.go", Patch: "+x"}}},
	})
	res, err := c.ProcessChunk(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessChunk error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200 with a degraded review", res.StatusCode)
	}

	var report ChunkReport
	if err := json.Unmarshal(res.Body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Results[0].Severity != domain.SeverityNormal {
		t.Errorf("degraded severity = %q, want NORMAL", report.Results[0].Severity)
	}
	if len(report.Results[0].Suggestions) != 0 {
		t.Errorf("degraded suggestions = %d, want 0", len(report.Results[0].Suggestions))
	}
}

func TestParseModelReview_FencedJSON(t *testing.T) {
	content := "```json\n" + modelAnswer + "\n```"
	parsed, err := parseModelReview(content)
	if err != nil {
		t.Fatalf("parseModelReview error: %v", err)
	}
	if parsed.Severity != domain.SeverityMajor {
		t.Errorf("Severity = %q, want MAJOR", parsed.Severity)
	}
	if len(parsed.ReviewPoints) != 1 {
		t.Errorf("len(ReviewPoints) = %d, want 1", len(parsed.ReviewPoints))
	}
}

func TestLineNumber_Tolerance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`42`, "42"},
		{`"42"`, "42"},
		{`"all"`, "Throughout file"},
		{`"nonsense"`, "N/A"},
		{`null`, "N/A"},
	}
	for _, tt := range tests {
		var ln LineNumber
		if err := json.Unmarshal([]byte(tt.in), &ln); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if got := ln.Display(); got != tt.want {
			t.Errorf("Display(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func chunkResultBody(t *testing.T, index int, reviews ...FileReview) domain.TaskResult {
	t.Helper()
	var all []Suggestion
	for _, r := range reviews {
		all = append(all, r.Suggestions...)
	}
	body, err := json.Marshal(ChunkReport{ChunkIndex: index, Severity: MaxSeverity(all), Results: reviews})
	if err != nil {
		t.Fatal(err)
	}
	return domain.TaskResult{ChunkIndex: index, StatusCode: 200, Body: body}
}

func TestAggregateResults(t *testing.T) {
	c := testCollaborators(&fakeGitHub{}, &fakeReviewer{}, nil)

	results := []domain.TaskResult{
		chunkResultBody(t, 0, FileReview{
			Path: "a.go", Language: "Go", Severity: domain.SeverityCritical,
			Summary: ChangeSummary{FunctionalChanges: []string{"added auth check"}},
			Suggestions: []Suggestion{
				{File: "a.go", Category: "security", Severity: domain.SeverityCritical, LineNumber: LineNumber{Value: 3}, Description: "token logged", Suggestion: "redact it"},
			},
		}),
		{ChunkIndex: 1, StatusCode: 500, ErrorMessage: "backend unavailable"},
		chunkResultBody(t, 2, FileReview{
			Path: "b.go", Language: "Go", Severity: domain.SeverityMinor,
			Suggestions: []Suggestion{
				{File: "b.go", Category: "style", Severity: domain.SeverityMinor, LineNumber: LineNumber{Value: 9}, Description: "long line", Suggestion: "wrap it"},
			},
		}),
	}

	input, _ := json.Marshal(workflow.AggregateInput{PR: prRef(), TotalFiles: 8, Results: results})
	res, err := c.AggregateResults(context.Background(), input)
	if err != nil {
		t.Fatalf("AggregateResults error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}

	var report AggregateReport
	if err := json.Unmarshal(res.Body, &report); err != nil {
		t.Fatal(err)
	}
	if report.Stats.TotalFiles != 8 {
		t.Errorf("TotalFiles = %d, want 8", report.Stats.TotalFiles)
	}
	if report.Stats.ReviewedFiles != 2 {
		t.Errorf("ReviewedFiles = %d, want 2", report.Stats.ReviewedFiles)
	}
	if report.Stats.TotalIssues != 2 {
		t.Errorf("TotalIssues = %d, want 2", report.Stats.TotalIssues)
	}
	if len(report.FailedChunks) != 1 || report.FailedChunks[0] != 1 {
		t.Errorf("FailedChunks = %v, want [1]", report.FailedChunks)
	}
	if report.OverallSeverity() != domain.SeverityCritical {
		t.Errorf("OverallSeverity = %q, want CRITICAL", report.OverallSeverity())
	}
	if !strings.Contains(report.MarkdownReport, "token logged") {
		t.Error("markdown report missing critical issue")
	}
	if !strings.Contains(report.PRComment, "could not be reviewed") {
		t.Error("PR comment missing partial-failure note")
	}
	if !strings.Contains(report.ChatMessage, "CRITICAL") {
		t.Error("chat message missing overall severity")
	}
}

func publishInputBody(t *testing.T, report AggregateReport) json.RawMessage {
	t.Helper()
	summary, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	input, err := json.Marshal(workflow.PublishInput{PR: prRef(), Summary: summary})
	if err != nil {
		t.Fatal(err)
	}
	return input
}

func TestPostComment(t *testing.T) {
	gh := &fakeGitHub{}
	c := testCollaborators(gh, &fakeReviewer{}, nil)

	input := publishInputBody(t, AggregateReport{PRComment: "# Code Review Summary\nall good"})
	res, err := c.PostComment(context.Background(), input)
	if err != nil {
		t.Fatalf("PostComment error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200 (2xx normalized)", res.StatusCode)
	}
	if len(gh.comments) != 1 || !strings.Contains(gh.comments[0], "all good") {
		t.Errorf("comments = %v", gh.comments)
	}
}

func TestSendNotification_SeverityMapsToType(t *testing.T) {
	notifier := &recordingNotifier{}
	c := testCollaborators(&fakeGitHub{}, &fakeReviewer{}, notifier)

	report := AggregateReport{
		Stats:       ReviewStats{SeverityCounts: map[domain.Severity]int{domain.SeverityCritical: 1}},
		ChatMessage: "found critical issues",
	}
	res, err := c.SendNotification(context.Background(), publishInputBody(t, report))
	if err != nil {
		t.Fatalf("SendNotification error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(notifier.sent))
	}
	if notifier.sent[0].Type != notify.NotifyError {
		t.Errorf("Type = %v, want NotifyError for a critical review", notifier.sent[0].Type)
	}
	if notifier.sent[0].PRURL == "" {
		t.Error("PRURL not set")
	}
}

func TestSendNotification_WebhookFailure(t *testing.T) {
	notifier := &recordingNotifier{err: &notify.StatusError{Code: 500}}
	c := testCollaborators(&fakeGitHub{}, &fakeReviewer{}, notifier)

	res, err := c.SendNotification(context.Background(), publishInputBody(t, AggregateReport{}))
	if err != nil {
		t.Fatalf("SendNotification error: %v", err)
	}
	if res.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", res.StatusCode)
	}
}

func TestHandleError(t *testing.T) {
	notifier := &recordingNotifier{}
	c := testCollaborators(&fakeGitHub{}, &fakeReviewer{}, notifier)

	input, _ := json.Marshal(map[string]interface{}{
		"execution_id": "exec-1",
		"pr":           prRef(),
		"error":        "initial processing: boom",
	})
	res, err := c.HandleError(context.Background(), input)
	if err != nil {
		t.Fatalf("HandleError error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Type != notify.NotifyError {
		t.Errorf("Type = %v, want NotifyError", n.Type)
	}
	if n.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q, want exec-1", n.ExecutionID)
	}
	if !strings.Contains(n.Message, "boom") {
		t.Errorf("Message = %q, want the cause included", n.Message)
	}
}
