// Package watch turns JSON files dropped into a spool directory into
// review submissions.
package watch

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
)

// SubmitCallback is called for each valid review request found in the
// spool directory.
type SubmitCallback func(req domain.ReviewRequest)

// SpoolWatcher monitors a directory for review request files. A
// request is a JSON file holding a ReviewRequest; processed files are
// removed.
type SpoolWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	callback SubmitCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewSpoolWatcher creates a watcher over dir, creating it if needed.
func NewSpoolWatcher(dir string, callback SubmitCallback) (*SpoolWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &SpoolWatcher{
		watcher:  watcher,
		dir:      dir,
		callback: callback,
		debounce: 500 * time.Millisecond, // settle time for partially written files
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching for spool files. Files already present in the
// directory are picked up first.
func (w *SpoolWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.scan()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watch] watcher error: %v", err)
			}
		}
	}()
}

// Stop stops watching.
func (w *SpoolWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the settle time before a spool file is processed.
func (w *SpoolWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// scan queues spool files that were dropped while the watcher was down.
func (w *SpoolWatcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[watch] scanning %s: %v", w.dir, err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		w.pending[filepath.Join(w.dir, entry.Name())] = struct{}{}
	}
	if len(w.pending) > 0 {
		w.resetTimer()
	}
}

func (w *SpoolWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] = struct{}{}
	w.resetTimer()
}

// resetTimer must be called with the mutex held.
func (w *SpoolWatcher) resetTimer() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *SpoolWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path := range pending {
		w.process(path)
	}
}

func (w *SpoolWatcher) process(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[watch] reading %s: %v", path, err)
		}
		return
	}

	var req domain.ReviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[watch] %s: invalid request: %v", path, err)
		return
	}
	if req.Owner == "" || req.Repo == "" || req.Number <= 0 {
		log.Printf("[watch] %s: incomplete request, ignoring", path)
		return
	}
	if req.Platform == "" {
		req.Platform = domain.PlatformGitHub
	}

	if err := os.Remove(path); err != nil {
		log.Printf("[watch] removing %s: %v", path, err)
	}

	log.Printf("[watch] submitting %s/%s#%d from %s", req.Owner, req.Repo, req.Number, filepath.Base(path))
	if w.callback != nil {
		w.callback(req)
	}
}
