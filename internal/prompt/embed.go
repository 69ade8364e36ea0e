// Package prompt provides externalized review prompt templates with
// override support.
package prompt

import "embed"

//go:embed review/*.md
var embeddedFS embed.FS

// Paths of the built-in templates.
const (
	FilePromptPath   = "review/file.md"
	SystemPromptPath = "review/system.md"
)
