package store

import (
	"testing"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestExecution(id string) *domain.Execution {
	return &domain.Execution{
		ID: id,
		PR: domain.PRRef{
			Platform: domain.PlatformGitHub,
			Owner:    "muylucir",
			Repo:     "widgets",
			Number:   42,
			Title:    "Add widget cache",
		},
		Stage:     domain.StageInit,
		Status:    domain.ExecutionRunning,
		StartedAt: time.Now(),
	}
}

func TestStore_CreateAndGetExecution(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateExecution(newTestExecution("exec-1")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetExecution("exec-1")
	if err != nil {
		t.Fatal(err)
	}

	if got.PR.Repo != "widgets" {
		t.Errorf("Repo = %q, want widgets", got.PR.Repo)
	}
	if got.PR.Number != 42 {
		t.Errorf("Number = %d, want 42", got.PR.Number)
	}
	if got.Stage != domain.StageInit {
		t.Errorf("Stage = %q, want init", got.Stage)
	}
	if got.Status != domain.ExecutionRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.FinishedAt != nil {
		t.Error("FinishedAt should be nil for a running execution")
	}
}

func TestStore_UpdateStageAndFinish(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateExecution(newTestExecution("exec-2")); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateStage("exec-2", domain.StageAggregate); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishExecution("exec-2", domain.ExecutionSuccess, ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetExecution("exec-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != domain.StageAggregate {
		t.Errorf("Stage = %q, want aggregate", got.Stage)
	}
	if got.Status != domain.ExecutionSuccess {
		t.Errorf("Status = %q, want success", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}

	// Terminal executions are never resurrected
	if err := s.FinishExecution("exec-2", domain.ExecutionFailed, "late"); err == nil {
		t.Error("second FinishExecution should fail")
	}
	got, _ = s.GetExecution("exec-2")
	if got.Status != domain.ExecutionSuccess {
		t.Errorf("Status = %q, want success after rejected re-finish", got.Status)
	}
}

func TestStore_JournalWriteOnce(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateExecution(newTestExecution("exec-3")); err != nil {
		t.Fatal(err)
	}

	if err := s.JournalStage("exec-3", domain.StageSplit, []byte(`{"chunks":2}`)); err != nil {
		t.Fatal(err)
	}
	// A second write for the same stage keeps the original payload.
	if err := s.JournalStage("exec-3", domain.StageSplit, []byte(`{"chunks":9}`)); err != nil {
		t.Fatal(err)
	}

	payload, ok, err := s.GetJournal("exec-3", domain.StageSplit)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("journal entry missing")
	}
	if string(payload) != `{"chunks":2}` {
		t.Errorf("payload = %s, want first write", payload)
	}

	_, ok, err = s.GetJournal("exec-3", domain.StageAggregate)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unjournaled stage reported present")
	}
}

func TestStore_TaskResultAuditTrail(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateExecution(newTestExecution("exec-4")); err != nil {
		t.Fatal(err)
	}

	results := []domain.TaskResult{
		{ChunkIndex: 0, StatusCode: 200, Body: []byte(`{"ok":true}`)},
		{ChunkIndex: 1, StatusCode: 429, ErrorKind: domain.ErrorKindRateLimited, ErrorMessage: "rate limit exceeded"},
	}
	for _, r := range results {
		if err := s.RecordTaskResult("exec-4", 1, "processChunk", r); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.ListTaskResults("exec-4")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Result.ChunkIndex != 0 || rows[1].Result.ChunkIndex != 1 {
		t.Error("audit rows out of insertion order")
	}
	if rows[1].Result.ErrorKind != domain.ErrorKindRateLimited {
		t.Errorf("ErrorKind = %q, want rate_limited", rows[1].Result.ErrorKind)
	}
}

func TestStore_ListExecutions(t *testing.T) {
	s := newTestStore(t)

	e1 := newTestExecution("exec-a")
	e1.StartedAt = time.Now().Add(-2 * time.Hour)
	e2 := newTestExecution("exec-b")
	e2.StartedAt = time.Now().Add(-1 * time.Hour)
	for _, e := range []*domain.Execution{e1, e2} {
		if err := s.CreateExecution(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.FinishExecution("exec-a", domain.ExecutionFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListExecutions(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("executions = %d, want 2", len(all))
	}
	if all[0].ID != "exec-b" {
		t.Errorf("first = %s, want exec-b (newest first)", all[0].ID)
	}

	failed, err := s.ListExecutions(ListOptions{Status: domain.ExecutionFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != "exec-a" {
		t.Errorf("failed filter returned %d rows", len(failed))
	}
}

func TestStore_DeleteFinishedBefore(t *testing.T) {
	s := newTestStore(t)

	old := newTestExecution("exec-old")
	if err := s.CreateExecution(old); err != nil {
		t.Fatal(err)
	}
	if err := s.JournalStage("exec-old", domain.StageInit, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTaskResult("exec-old", 1, "processChunk", domain.TaskResult{StatusCode: 200}); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishExecution("exec-old", domain.ExecutionSuccess, ""); err != nil {
		t.Fatal(err)
	}

	live := newTestExecution("exec-live")
	if err := s.CreateExecution(live); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteFinishedBefore(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if _, err := s.GetExecution("exec-old"); err == nil {
		t.Error("exec-old should be gone")
	}
	if _, err := s.GetExecution("exec-live"); err != nil {
		t.Error("running execution should survive retention")
	}

	rows, err := s.ListTaskResults("exec-old")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("audit rows = %d, want 0 after retention", len(rows))
	}
}
