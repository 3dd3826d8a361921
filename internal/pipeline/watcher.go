package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"uplift/internal/logging"
)

// PromptWatcher watches a prompt override directory and reloads the
// store when *.tmpl files settle after an edit, so prompt tuning takes
// effect without a restart.
type PromptWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	store       *PromptStore
	dir         string
	pending     bool
	lastEvent   time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewPromptWatcher creates a watcher for dir. Call Start to begin.
func NewPromptWatcher(store *PromptStore, dir string) (*PromptWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &PromptWatcher{
		watcher:     watcher,
		store:       store,
		dir:         dir,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine. Non-blocking; a missing
// directory is tolerated since it may be created later.
func (w *PromptWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		logging.PipelineDebug("prompt watcher: cannot watch %s yet: %v", w.dir, err)
	} else {
		logging.Pipeline("prompt watcher: watching %s", w.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit. Safe to call
// once regardless of whether Start ran.
func (w *PromptWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

// Reloads reports how often the overrides have been reloaded.
func (w *PromptWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *PromptWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.PipelineDebug("prompt watcher error: %v", err)
		case <-ticker.C:
			w.maybeReload()
		}
	}
}

func (w *PromptWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".tmpl") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// maybeReload reloads overrides once events have settled past the
// debounce window, batching rapid editor saves into one reload.
func (w *PromptWatcher) maybeReload() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.reloads++
	w.mu.Unlock()

	if err := w.store.LoadOverrides(w.dir); err != nil {
		logging.PipelineDebug("prompt watcher: reload failed: %v", err)
		return
	}
	logging.Pipeline("prompt watcher: reloaded overrides from %s", w.dir)
}
