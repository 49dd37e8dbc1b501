package document

import (
	"context"
	"fmt"
	"log/slog"
	"path"
)

// Store is the slice of the remote store client the repository needs.
type Store interface {
	GetFile(ctx context.Context, path string) ([]byte, string, error)
	PutFile(ctx context.Context, path string, raw []byte, message string) (string, error)
}

// Repository loads and saves the document at a fixed repository path.
type Repository struct {
	store  Store
	path   string
	logger *slog.Logger
}

// NewRepository creates a repository for the document at the given path.
func NewRepository(store Store, docPath string, logger *slog.Logger) *Repository {
	return &Repository{
		store:  store,
		path:   docPath,
		logger: logger,
	}
}

// Load reads and normalizes the document. It never fails: a missing
// file, transport error, or unparseable payload all collapse to the
// fallback document so the editing session always starts from a usable
// value. Swallowed errors are logged. The returned sha is "" when the
// remote document could not be read.
func (r *Repository) Load(ctx context.Context) (*Document, string) {
	raw, sha, err := r.store.GetFile(ctx, r.path)
	if err != nil {
		r.logger.Warn("loading document failed, using fallback",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)

		return Fallback(), ""
	}

	doc, err := Normalize(raw)
	if err != nil {
		r.logger.Warn("document unparseable, using fallback",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)

		return Fallback(), ""
	}

	return doc, sha
}

// Save serializes the document with stable formatting and writes it
// through the store's compare-and-swap path. A conflict (the document
// changed remotely since last load) surfaces untouched — merging is a
// human decision, never retried silently.
func (r *Repository) Save(ctx context.Context, doc *Document) (string, error) {
	raw, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}

	message := fmt.Sprintf("admin: update %s", path.Base(r.path))

	sha, err := r.store.PutFile(ctx, r.path, raw, message)
	if err != nil {
		return "", err
	}

	return sha, nil
}

// Raw returns the current remote document bytes and sha without
// normalization, for conflict inspection.
func (r *Repository) Raw(ctx context.Context) ([]byte, string, error) {
	return r.store.GetFile(ctx, r.path)
}
