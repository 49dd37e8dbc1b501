package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long a file must sit quiet before it is ingested,
// so half-written copies are not picked up mid-write.
const debounce = 500 * time.Millisecond

// Watcher ingests files dropped into a local inbox directory, staging
// them on the queue for a fixed remote folder. It only queues; the
// upload itself still needs an explicit run.
type Watcher struct {
	dir    string
	folder string
	queue  *Queue
	logger *slog.Logger

	mu      sync.Mutex
	lastHit map[string]time.Time
}

// NewWatcher creates a watcher over dir that queues into folder.
func NewWatcher(dir, folder string, queue *Queue, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		folder:  folder,
		queue:   queue,
		logger:  logger,
		lastHit: make(map[string]time.Time),
	}
}

// Watch monitors the inbox until the context is cancelled. Files
// already sitting in the inbox at startup are ingested first.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching inbox %s: %w", w.dir, err)
	}

	w.ingestExisting()

	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.touch(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			w.logger.Warn("inbox watcher error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			w.ingestSettled(now)
		}
	}
}

func (w *Watcher) touch(path string) {
	if shouldIgnore(path) {
		return
	}

	w.mu.Lock()
	w.lastHit[path] = time.Now()
	w.mu.Unlock()
}

// ingestSettled queues files whose last write is older than the
// debounce window.
func (w *Watcher) ingestSettled(now time.Time) {
	w.mu.Lock()

	var ready []string

	for path, hit := range w.lastHit {
		if now.Sub(hit) >= debounce {
			ready = append(ready, path)
			delete(w.lastHit, path)
		}
	}

	w.mu.Unlock()

	for _, path := range ready {
		w.ingest(path)
	}
}

func (w *Watcher) ingestExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("reading inbox failed", slog.String("error", err.Error()))

		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(w.dir, entry.Name())
		if shouldIgnore(path) {
			continue
		}

		w.ingest(path)
	}
}

// ingest reads a file, queues it, and removes the local copy so a
// restart does not queue it twice.
func (w *Watcher) ingest(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading inbox file failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return
	}

	w.queue.Add(w.folder, filepath.Base(path), data)

	if err := os.Remove(path); err != nil {
		w.logger.Warn("removing ingested file failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	w.logger.Info("inbox file queued",
		slog.String("name", filepath.Base(path)),
		slog.String("folder", w.folder),
	)
}

// shouldIgnore filters hidden files and editor temp files.
func shouldIgnore(path string) bool {
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") {
		return true
	}

	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".part") {
		return true
	}

	return false
}
