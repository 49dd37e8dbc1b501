package upload

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsvig/folio-admin/internal/github"
)

type fakeUploadStore struct {
	mu sync.Mutex

	shas     map[string]string
	putErr   map[string]error
	order    []string
	inPut    int
	maxInPut int
	gate     chan struct{}
}

func newFakeUploadStore() *fakeUploadStore {
	return &fakeUploadStore{
		shas:   map[string]string{},
		putErr: map[string]error{},
	}
}

func (f *fakeUploadStore) FileSHA(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.shas[path], nil
}

func (f *fakeUploadStore) PutFileWithSHA(_ context.Context, path string, _ []byte, _, _ string) (string, error) {
	f.mu.Lock()
	f.order = append(f.order, path)
	f.inPut++
	if f.inPut > f.maxInPut {
		f.maxInPut = f.inPut
	}
	err := f.putErr[path]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.inPut--
	f.mu.Unlock()

	if err != nil {
		return "", err
	}

	return "new-sha", nil
}

func newTestQueue(store Store) *Queue {
	return NewQueue(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQueue_AddStagesPending(t *testing.T) {
	q := newTestQueue(newFakeUploadStore())

	id := q.Add("public/photos", "chair.jpg", []byte("bytes"))

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, StatusPending, items[0].Status)
	assert.Equal(t, "public/photos/chair.jpg", items[0].Path)
	assert.Equal(t, 5, items[0].Size)
	assert.Zero(t, items[0].Progress)
}

func TestQueue_RunUploadsSequentially(t *testing.T) {
	store := newFakeUploadStore()
	q := newTestQueue(store)

	q.Add("public/photos", "a.jpg", []byte("a"))
	q.Add("public/photos", "b.jpg", []byte("b"))
	q.Add("public/svgs", "c.svg", []byte("c"))

	q.Run(context.Background())

	assert.Equal(t, []string{"public/photos/a.jpg", "public/photos/b.jpg", "public/svgs/c.svg"}, store.order)
	assert.Equal(t, 1, store.maxInPut, "never more than one request in flight")

	for _, it := range q.Items() {
		assert.Equal(t, StatusOK, it.Status)
		assert.Equal(t, 100, it.Progress)
	}
}

func TestQueue_FailedItemRecordsErrorAndRunContinues(t *testing.T) {
	store := newFakeUploadStore()
	store.putErr["public/photos/bad.jpg"] = &github.StoreError{Status: 422, Message: "too large"}

	q := newTestQueue(store)
	q.Add("public/photos", "bad.jpg", []byte("x"))
	q.Add("public/photos", "good.jpg", []byte("y"))

	q.Run(context.Background())

	items := q.Items()
	require.Len(t, items, 2)
	assert.Equal(t, StatusErr, items[0].Status)
	assert.Contains(t, items[0].Error, "too large")
	assert.Equal(t, StatusOK, items[1].Status)
}

func TestQueue_FailedItemsNeverRetried(t *testing.T) {
	store := newFakeUploadStore()
	store.putErr["public/photos/bad.jpg"] = &github.StoreError{Status: 422, Message: "too large"}

	q := newTestQueue(store)
	q.Add("public/photos", "bad.jpg", []byte("x"))

	q.Run(context.Background())
	q.Run(context.Background())

	assert.Len(t, store.order, 1, "a failed item is not picked up by a later run")
	assert.Equal(t, StatusErr, q.Items()[0].Status)
}

func TestQueue_RunIsNoopWhileRunning(t *testing.T) {
	store := newFakeUploadStore()
	store.gate = make(chan struct{})

	q := newTestQueue(store)
	q.Add("public/photos", "a.jpg", []byte("a"))

	done := make(chan struct{})
	go func() {
		q.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, q.Running, time.Second, time.Millisecond)

	q.Run(context.Background()) // returns immediately

	close(store.gate)
	<-done

	assert.Len(t, store.order, 1)
}

func TestQueue_ProgressCheckpoints(t *testing.T) {
	store := newFakeUploadStore()
	q := newTestQueue(store)

	var mu sync.Mutex
	var progress []int
	q.OnProgress = func(it Item) {
		mu.Lock()
		progress = append(progress, it.Progress)
		mu.Unlock()
	}

	q.Add("public/photos", "a.jpg", []byte("a"))
	q.Run(context.Background())

	assert.Equal(t, []int{0, 20, 60, 100}, progress)
}

func TestQueue_OnDoneFiresOnlyWhenSomethingUploaded(t *testing.T) {
	store := newFakeUploadStore()
	q := newTestQueue(store)

	fired := 0
	q.OnDone = func() { fired++ }

	q.Run(context.Background())
	assert.Zero(t, fired, "empty run does not fire")

	q.Add("public/photos", "a.jpg", []byte("a"))
	q.Run(context.Background())
	assert.Equal(t, 1, fired)
}

func TestQueue_ClearFinished(t *testing.T) {
	store := newFakeUploadStore()
	store.putErr["public/photos/bad.jpg"] = &github.StoreError{Status: 422, Message: "too large"}

	q := newTestQueue(store)
	q.Add("public/photos", "ok.jpg", []byte("a"))
	q.Add("public/photos", "bad.jpg", []byte("b"))
	q.Add("public/photos", "pending.jpg", nil)

	q.Run(context.Background())

	// pending.jpg uploaded too; re-stage one to keep a pending item.
	q.Add("public/photos", "later.jpg", []byte("c"))

	q.ClearFinished()

	var names []string
	for _, it := range q.Items() {
		names = append(names, it.Name)
	}

	assert.Equal(t, []string{"bad.jpg", "later.jpg"}, names, "ok items dropped, failed and pending kept")
}
