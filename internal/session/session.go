// Package session owns the in-memory editing state: the current
// document, its remote sha, and the dirty flag. All edits flow through
// Update and all persistence through Save, so dirtiness can never be
// wrong. One session serves every connected editor surface (HTTP, MCP).
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/larsvig/folio-admin/internal/document"
)

// ErrSaveInFlight is returned when Save is called while a previous save
// has not finished. The caller retries after the first one resolves.
var ErrSaveInFlight = errors.New("save already in flight")

// Event types pushed to subscribers.
const (
	EventDirty          = "dirty-changed"
	EventSaved          = "saved"
	EventSaveFailed     = "save-failed"
	EventUploadProgress = "upload-progress"
)

// Event is a session state change broadcast to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Session is the dirty-state controller around a document repository.
type Session struct {
	repo   *document.Repository
	logger *slog.Logger

	mu      sync.Mutex
	current *document.Document
	sha     string
	dirty   bool
	saving  bool

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates a session. Start must be called before use.
func New(repo *document.Repository, logger *slog.Logger) *Session {
	return &Session{
		repo:    repo,
		logger:  logger,
		current: document.Fallback(),
		subs:    make(map[chan Event]struct{}),
	}
}

// Start performs the initial load. It never fails: an unreachable or
// malformed remote collapses to the fallback document.
func (s *Session) Start(ctx context.Context) {
	doc, sha := s.repo.Load(ctx)

	s.mu.Lock()
	s.current = doc
	s.sha = sha
	s.dirty = false
	s.mu.Unlock()

	s.logger.Info("session started", slog.Bool("remote_loaded", sha != ""))
}

// Document returns the current document. Callers must treat it as
// read-only; every edit goes through Update.
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Dirty reports whether unsaved edits exist.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dirty
}

// SHA returns the blob sha of the last loaded or saved remote document,
// or "" when the remote has never been reached.
func (s *Session) SHA() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sha
}

// Saving reports whether a save is in flight.
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saving
}

// Update applies a mutator to a deep copy of the current document and
// swaps the copy in. The session always becomes dirty, even for an edit
// that happens to produce identical content: intent to change is what
// is tracked, not content equality.
func (s *Session) Update(m document.Mutator) {
	s.mu.Lock()

	next := s.current.Clone()
	m(next)

	s.current = next
	s.dirty = true
	s.mu.Unlock()

	s.Publish(Event{Type: EventDirty, Data: map[string]bool{"dirty": true}})
}

// Save persists the current document when dirty. It is non-reentrant:
// a second call while one is in flight returns ErrSaveInFlight. The
// lock is released around the network call so edits keep flowing; the
// dirty flag is cleared only when nothing was edited during the save.
// A CAS conflict surfaces untouched and the session stays dirty.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()

	if s.saving {
		s.mu.Unlock()

		return ErrSaveInFlight
	}

	if !s.dirty {
		s.mu.Unlock()

		return nil
	}

	snapshot := s.current
	s.saving = true
	s.mu.Unlock()

	sha, err := s.repo.Save(ctx, snapshot)

	s.mu.Lock()
	s.saving = false

	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("save failed", slog.String("error", err.Error()))
		s.Publish(Event{Type: EventSaveFailed, Data: map[string]string{"error": err.Error()}})

		return err
	}

	s.sha = sha
	if s.current == snapshot {
		s.dirty = false
	}
	stillDirty := s.dirty
	s.mu.Unlock()

	s.Publish(Event{Type: EventSaved, Data: map[string]any{"sha": sha, "dirty": stillDirty}})

	return nil
}

// Discard throws away local edits and reloads from the remote.
func (s *Session) Discard(ctx context.Context) {
	doc, sha := s.repo.Load(ctx)

	s.mu.Lock()
	s.current = doc
	s.sha = sha
	s.dirty = false
	s.mu.Unlock()

	s.Publish(Event{Type: EventDirty, Data: map[string]bool{"dirty": false}})
}

// ConflictDiff fetches the remote head and returns a human-readable
// diff against the local serialization. Used after a save conflict so
// the editor can decide between saving over or discarding; nothing is
// ever merged automatically.
func (s *Session) ConflictDiff(ctx context.Context) (string, error) {
	raw, _, err := s.repo.Raw(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	local, err := s.current.Marshal()
	s.mu.Unlock()

	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(raw), string(local), false)
	dmp.DiffCleanupSemantic(diffs)

	return dmp.DiffPrettyText(diffs), nil
}

// Subscribe registers an event channel. The returned cancel function
// must be called when the subscriber goes away. Slow subscribers drop
// events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}

	return ch, cancel
}

// Publish broadcasts an event to all subscribers. Exported so the
// upload queue can feed progress through the same channel.
func (s *Session) Publish(evt Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
