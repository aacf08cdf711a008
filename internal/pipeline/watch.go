package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"downlevel/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs a Runner whenever inputs under its roots change. Bursts
// of events on the same file are collapsed until the file has been quiet
// for the debounce window, then all settled files are rebuilt in one pass.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	runner      *Runner
	dirRoots    []string
	explicit    map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onRebuild   func(*Summary, error)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatchStats
}

// WatchStats tracks watcher activity.
type WatchStats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Rebuilds      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// NewWatcher watches roots, which may name files or directories, and feeds
// settled changes to runner. onRebuild, if set, receives the outcome of
// every rebuild from the watcher goroutine.
func NewWatcher(runner *Runner, roots []string, onRebuild func(*Summary, error)) *Watcher {
	w := &Watcher{
		runner:      runner,
		explicit:    make(map[string]bool),
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		onRebuild:   onRebuild,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, root := range roots {
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			w.explicit[filepath.Clean(root)] = true
			continue
		}
		w.dirRoots = append(w.dirRoots, filepath.Clean(root))
	}
	return w
}

// SetDebounce changes the quiet period. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Start registers the watches and begins processing events in the
// background. It returns once the watches are in place.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.watcher = fw
	w.running = true
	w.mu.Unlock()

	if err := w.addRoots(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = fw.Close()
		return err
	}
	logging.Watch("watching %d directories", len(fw.WatchList()))

	go w.run(ctx)
	return nil
}

func (w *Watcher) addRoots() error {
	for _, root := range w.dirRoots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	parents := make(map[string]bool)
	for path := range w.explicit {
		parents[filepath.Dir(path)] = true
	}
	for dir := range parents {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fw := w.watcher
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := fw.Close(); err != nil {
		logging.WatchError("closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// addTree watches dir and every directory below it that is not ignored.
func (w *Watcher) addTree(dir string) error {
	ignore := w.runner.cfg.Input.IgnorePatterns
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignored(d.Name(), d.Name(), ignore) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		logging.WatchDebug("watching %s", path)
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(w.tick())
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
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
			logging.WatchError("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) tick() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if t := w.debounceDur / 3; t > 0 && t < 100*time.Millisecond {
		return t
	}
	return 100 * time.Millisecond
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	path := filepath.Clean(event.Name)
	if eventType == "create" {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.addCreatedDir(path)
			return
		}
	}
	if !w.accepts(path) {
		return
	}
	logging.WatchDebug("%s event for %s", eventType, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = path
	w.stats.LastEventType = eventType
	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
	}
	w.debounceMap[path] = time.Now()
}

// addCreatedDir starts watching a new directory and queues the files that
// were written into it before the watch existed.
func (w *Watcher) addCreatedDir(dir string) {
	if !w.underDirRoot(dir) || w.skipped(dir) || w.runner.isOutput(dir) {
		return
	}
	if err := w.addTree(dir); err != nil {
		logging.WatchError("%v", err)
		return
	}
	files, err := Discover([]string{dir}, w.runner.cfg.Input)
	if err != nil {
		logging.WatchError("%v", err)
		return
	}
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range files {
		if !w.runner.isOutput(path) {
			w.debounceMap[path] = now
		}
	}
}

// accepts reports whether path is an input the runner cares about.
func (w *Watcher) accepts(path string) bool {
	if w.runner.isOutput(path) {
		return false
	}
	if w.explicit[path] {
		return true
	}
	return w.underDirRoot(path) && hasExtension(path, w.runner.cfg.Input.Extensions) && !w.skipped(path)
}

func (w *Watcher) underDirRoot(path string) bool {
	_, ok := w.rootOf(path)
	return ok
}

func (w *Watcher) rootOf(path string) (string, bool) {
	for _, root := range w.dirRoots {
		rel, err := filepath.Rel(root, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return root, true
		}
	}
	return "", false
}

// skipped reports whether any component of path below its root matches an
// ignore pattern.
func (w *Watcher) skipped(path string) bool {
	root, ok := w.rootOf(path)
	if !ok {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := range parts {
		if ignored(strings.Join(parts[:i+1], "/"), parts[i], w.runner.cfg.Input.IgnorePatterns) {
			return true
		}
	}
	return false
}

// processDebouncedEvents rebuilds the files whose events have settled.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)
	w.rebuild(ctx, settled)
}

func (w *Watcher) rebuild(ctx context.Context, paths []string) {
	var changed, removed []string
	limit := w.runner.cfg.Input.MaxFileBytes
	for _, path := range paths {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			removed = append(removed, path)
		case info.IsDir():
		case limit > 0 && info.Size() > limit:
			removed = append(removed, path)
		default:
			changed = append(changed, path)
		}
	}
	logging.Watch("rebuilding: %d changed, %d removed", len(changed), len(removed))

	sum, err := w.runner.Update(ctx, changed, removed)
	w.mu.Lock()
	w.stats.Rebuilds++
	if err != nil && sum == nil {
		w.stats.Errors++
	}
	w.mu.Unlock()

	if err != nil && sum == nil {
		logging.WatchError("rebuild failed: %v", err)
	}
	if w.onRebuild != nil {
		w.onRebuild(sum, err)
	}
}

// Stats returns a snapshot of the watcher statistics.
func (w *Watcher) Stats() WatchStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs lists the directories under watch.
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.watcher == nil {
		return nil
	}
	return w.watcher.WatchList()
}
