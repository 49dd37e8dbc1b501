// Package upload queues files for transfer to the remote store. Items
// are staged as pending and pushed sequentially on an explicit run:
// commits to the store are one request each, so parallel uploads buy
// nothing and make progress reporting a mess.
package upload

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Item statuses.
const (
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusOK        = "ok"
	StatusErr       = "err"
)

// Store is the slice of the remote store client the queue needs. The
// sha lookup is separate from the write so progress can step between
// the two round trips.
type Store interface {
	FileSHA(ctx context.Context, path string) (string, error)
	PutFileWithSHA(ctx context.Context, path string, raw []byte, sha, message string) (string, error)
}

// Item is one queued file.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Folder   string `json:"folder"`
	Path     string `json:"path"`
	Size     int    `json:"size"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`

	data []byte
}

// Progress checkpoints. Started, sha resolved, confirmed.
const (
	progressStarted  = 20
	progressResolved = 60
	progressDone     = 100
)

// Queue holds pending items and uploads them one at a time.
type Queue struct {
	store  Store
	logger *slog.Logger

	// OnDone fires after a run in which at least one item succeeded,
	// so listings can refresh. OnProgress fires on every item state
	// change. Both may be nil and are called without the lock held.
	OnDone     func()
	OnProgress func(Item)

	mu      sync.Mutex
	items   []*Item
	running bool
}

// NewQueue creates an empty queue over the given store.
func NewQueue(store Store, logger *slog.Logger) *Queue {
	return &Queue{
		store:  store,
		logger: logger,
	}
}

// Add stages a file as pending and returns its queue id.
func (q *Queue) Add(folder, name string, data []byte) string {
	item := &Item{
		ID:     uuid.NewString(),
		Name:   name,
		Folder: folder,
		Path:   folder + "/" + name,
		Size:   len(data),
		Status: StatusPending,
		data:   data,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.logger.Debug("upload queued",
		slog.String("path", item.Path),
		slog.Int("size", item.Size),
	)

	q.notify(*item)

	return item.ID
}

// Items returns a snapshot of the queue for status display.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}

	return out
}

// Running reports whether a run is in flight.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.running
}

// Run uploads all pending items sequentially. A failed item records its
// error and the run moves on; nothing is retried automatically — the
// failure stays visible until the user clears or re-adds it. Calling
// Run while a run is in flight is a no-op.
func (q *Queue) Run(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()

		return
	}

	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	uploaded := 0

	for {
		item := q.nextPending()
		if item == nil {
			break
		}

		if err := q.upload(ctx, item); err != nil {
			q.setError(item, err)

			continue
		}

		uploaded++
	}

	if uploaded > 0 && q.OnDone != nil {
		q.OnDone()
	}
}

// ClearFinished drops items that uploaded successfully. Failed items
// stay until explicitly re-added or cleared by a later successful run.
func (q *Queue) ClearFinished() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]

	for _, it := range q.items {
		if it.Status != StatusOK {
			kept = append(kept, it)
		}
	}

	q.items = kept
}

func (q *Queue) nextPending() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.Status == StatusPending {
			return it
		}
	}

	return nil
}

func (q *Queue) upload(ctx context.Context, item *Item) error {
	q.setProgress(item, StatusUploading, progressStarted)

	sha, err := q.store.FileSHA(ctx, item.Path)
	if err != nil {
		return err
	}

	q.setProgress(item, StatusUploading, progressResolved)

	message := "admin: upload " + item.Name

	if _, err := q.store.PutFileWithSHA(ctx, item.Path, item.data, sha, message); err != nil {
		return err
	}

	q.mu.Lock()
	item.Status = StatusOK
	item.Progress = progressDone
	item.data = nil
	snapshot := *item
	q.mu.Unlock()

	q.logger.Info("upload complete", slog.String("path", item.Path))
	q.notify(snapshot)

	return nil
}

func (q *Queue) setProgress(item *Item, status string, progress int) {
	q.mu.Lock()
	item.Status = status
	item.Progress = progress
	snapshot := *item
	q.mu.Unlock()

	q.notify(snapshot)
}

func (q *Queue) setError(item *Item, err error) {
	q.mu.Lock()
	item.Status = StatusErr
	item.Error = err.Error()
	snapshot := *item
	q.mu.Unlock()

	q.logger.Warn("upload failed",
		slog.String("path", item.Path),
		slog.String("error", err.Error()),
	)

	q.notify(snapshot)
}

func (q *Queue) notify(item Item) {
	if q.OnProgress != nil {
		q.OnProgress(item)
	}
}
