package workflow

import (
	"testing"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

func TestClassify_StrictPartition(t *testing.T) {
	results := []domain.TaskResult{
		{ChunkIndex: 0, StatusCode: 200},
		{ChunkIndex: 1, StatusCode: 500},
		{ChunkIndex: 2, StatusCode: 200},
		{ChunkIndex: 3, StatusCode: 429},
		{ChunkIndex: 4, StatusCode: 200, Body: []byte(`{"error":"Rate limit exceeded for model"}`)},
	}

	cls := Classify(results)

	if len(cls.Succeeded)+len(cls.Failed) != len(results) {
		t.Fatalf("partition lost results: %d + %d != %d", len(cls.Succeeded), len(cls.Failed), len(results))
	}

	gotSucceeded := []int{}
	for _, r := range cls.Succeeded {
		gotSucceeded = append(gotSucceeded, r.ChunkIndex)
	}
	gotFailed := []int{}
	for _, r := range cls.Failed {
		gotFailed = append(gotFailed, r.ChunkIndex)
	}

	wantSucceeded := []int{0, 2}
	wantFailed := []int{1, 3, 4}

	if len(gotSucceeded) != len(wantSucceeded) {
		t.Fatalf("succeeded = %v, want %v", gotSucceeded, wantSucceeded)
	}
	for i := range wantSucceeded {
		if gotSucceeded[i] != wantSucceeded[i] {
			t.Errorf("succeeded[%d] = %d, want %d", i, gotSucceeded[i], wantSucceeded[i])
		}
	}
	for i := range wantFailed {
		if gotFailed[i] != wantFailed[i] {
			t.Errorf("failed[%d] = %d, want %d", i, gotFailed[i], wantFailed[i])
		}
	}
}

func TestClassify_Empty(t *testing.T) {
	cls := Classify(nil)
	if len(cls.Succeeded) != 0 || len(cls.Failed) != 0 {
		t.Error("empty input should produce empty partition")
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		r    domain.TaskResult
		want bool
	}{
		{"status 429", domain.TaskResult{StatusCode: 429}, true},
		{"error kind", domain.TaskResult{StatusCode: 200, ErrorKind: domain.ErrorKindRateLimited}, true},
		{"marker in message", domain.TaskResult{StatusCode: 500, ErrorMessage: "model Rate Limit hit"}, true},
		{"marker in body", domain.TaskResult{StatusCode: 200, Body: []byte(`{"err":"rate limit exceeded"}`)}, true},
		{"plain success", domain.TaskResult{StatusCode: 200, Body: []byte(`{"ok":true}`)}, false},
		{"plain 500", domain.TaskResult{StatusCode: 500, ErrorMessage: "internal"}, false},
	}

	for _, tt := range tests {
		if got := IsRateLimited(tt.r); got != tt.want {
			t.Errorf("%s: IsRateLimited() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMerge_OrderAndLength(t *testing.T) {
	succeeded := []domain.TaskResult{
		{ChunkIndex: 0, StatusCode: 200},
		{ChunkIndex: 2, StatusCode: 200},
	}
	retried := []domain.TaskResult{
		{ChunkIndex: 1, StatusCode: 200},
		{ChunkIndex: 3, StatusCode: 500},
	}

	merged := Merge(succeeded, retried)

	if len(merged.Results) != 4 {
		t.Fatalf("len = %d, want 4", len(merged.Results))
	}
	if merged.Retried != 2 {
		t.Errorf("Retried = %d, want 2", merged.Retried)
	}
	// Fixed order: succeeded-from-first-pass, then retry-pass outcomes.
	wantOrder := []int{0, 2, 1, 3}
	for i, want := range wantOrder {
		if merged.Results[i].ChunkIndex != want {
			t.Errorf("Results[%d].ChunkIndex = %d, want %d", i, merged.Results[i].ChunkIndex, want)
		}
	}
}

func TestMerge_NoRetries(t *testing.T) {
	succeeded := []domain.TaskResult{{ChunkIndex: 0, StatusCode: 200}}

	merged := Merge(succeeded, nil)

	if len(merged.Results) != 1 {
		t.Fatalf("len = %d, want 1", len(merged.Results))
	}
	if merged.Retried != 0 {
		t.Errorf("Retried = %d, want 0", merged.Retried)
	}
}
