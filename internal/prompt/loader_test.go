package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderLoadEmbedded(t *testing.T) {
	loader := NewLoader()

	tmpl, meta, err := loader.LoadTemplate(FilePromptPath)
	if err != nil {
		t.Fatalf("failed to load file template: %v", err)
	}
	if tmpl == nil {
		t.Fatal("template should not be nil")
	}
	if meta == nil {
		t.Fatal("file template should have frontmatter metadata")
	}
	if meta.ID != "file" {
		t.Errorf("expected ID 'file', got '%s'", meta.ID)
	}
}

func TestBuildFilePrompt(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildFilePrompt(FileData{
		Path:         "pkg/widget.go",
		Language:     "Go",
		Patch:        "+func NewWidget() {}",
		RelatedFiles: []string{"pkg/widget_test.go"},
	})
	if err != nil {
		t.Fatalf("failed to build file prompt: %v", err)
	}

	for _, want := range []string{"pkg/widget.go", "```Go", "+func NewWidget() {}", "pkg/widget_test.go", "review_points"} {
		if !strings.Contains(result, want) {
			t.Errorf("prompt missing %q, got: %s", want, result)
		}
	}
}

func TestBuildFilePrompt_NoRelatedFiles(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildFilePrompt(FileData{Path: "a.py", Language: "Python", Patch: "+x = 1"})
	if err != nil {
		t.Fatalf("failed to build file prompt: %v", err)
	}
	if strings.Contains(result, "Related Files") {
		t.Error("prompt should omit the related-files section when empty")
	}
}

func TestSystemPrompt(t *testing.T) {
	loader := NewLoader()

	sys, err := loader.SystemPrompt()
	if err != nil {
		t.Fatalf("failed to load system prompt: %v", err)
	}
	if !strings.Contains(sys, "senior code reviewer") {
		t.Errorf("unexpected system prompt: %s", sys)
	}
	if strings.HasPrefix(sys, "---") {
		t.Error("frontmatter should be stripped from the system prompt")
	}
}

func TestLoaderOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "prompt-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	reviewDir := filepath.Join(tmpDir, "review")
	if err := os.MkdirAll(reviewDir, 0755); err != nil {
		t.Fatalf("failed to create review dir: %v", err)
	}

	customContent := "CUSTOM review of {{.Path}}\n"
	if err := os.WriteFile(filepath.Join(reviewDir, "file.md"), []byte(customContent), 0644); err != nil {
		t.Fatalf("failed to write override file: %v", err)
	}

	loader := NewLoader(tmpDir)

	result, err := loader.BuildFilePrompt(FileData{Path: "main.go"})
	if err != nil {
		t.Fatalf("failed to build file prompt: %v", err)
	}
	if !strings.Contains(result, "CUSTOM review of main.go") {
		t.Errorf("override was not used, got: %s", result)
	}
}
