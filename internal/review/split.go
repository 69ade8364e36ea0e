package review

import (
	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// BuildWorkItems groups changed files into work items, flushing a
// group when adding the next file would exceed maxFiles or maxBytes.
// A single oversized file still gets its own item.
func BuildWorkItems(files []domain.ChangedFile, maxFiles, maxBytes int) []domain.WorkItem {
	if len(files) == 0 {
		return nil
	}
	if maxFiles <= 0 {
		maxFiles = 3
	}
	if maxBytes <= 0 {
		maxBytes = 100000
	}

	var items []domain.WorkItem
	var current []domain.ChangedFile
	currentBytes := 0
	idx := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		items = append(items, domain.WorkItem{
			Index:     idx,
			Files:     current,
			SizeBytes: currentBytes,
		})
		idx++
		current = nil
		currentBytes = 0
	}

	for _, f := range files {
		size := len(f.Patch)
		if len(current) > 0 && (len(current)+1 > maxFiles || currentBytes+size > maxBytes) {
			flush()
		}
		current = append(current, f)
		currentBytes += size
	}
	flush()

	return items
}
