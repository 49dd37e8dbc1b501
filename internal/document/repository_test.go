package document

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/larsvig/folio-admin/internal/github"
)

const testDocPath = "public/config.json"

func newTestRepository(t *testing.T) (*Repository, *MockStore) {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRepository(store, testDocPath, logger), store
}

func TestRepository_Load(t *testing.T) {
	repo, store := newTestRepository(t)

	raw := []byte(`{"site": {"name": "Jane"}, "photos": [{"filename": "a.jpg"}]}`)
	store.EXPECT().GetFile(gomock.Any(), testDocPath).Return(raw, "sha-1", nil)

	doc, sha := repo.Load(context.Background())

	assert.Equal(t, "sha-1", sha)
	assert.Equal(t, "Jane", doc.Site.Name)
	require.Len(t, doc.Photos, 1)
}

func TestRepository_Load_MissingFileFallsBack(t *testing.T) {
	repo, store := newTestRepository(t)

	store.EXPECT().GetFile(gomock.Any(), testDocPath).
		Return(nil, "", &github.StoreError{Status: 404, Message: "Not Found"})

	doc, sha := repo.Load(context.Background())

	assert.Empty(t, sha)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Photos)
	assert.NotNil(t, doc.Photos)
	assert.NotNil(t, doc.Svgs)
	assert.NotNil(t, doc.Projects)
	assert.NotNil(t, doc.CV.Education)
	assert.NotNil(t, doc.CV.Exhibitions)
	assert.NotNil(t, doc.CV.Experience)
	assert.NotNil(t, doc.CV.Tools)
}

func TestRepository_Load_UnparseablePayloadFallsBack(t *testing.T) {
	repo, store := newTestRepository(t)

	store.EXPECT().GetFile(gomock.Any(), testDocPath).
		Return([]byte(`<html>rate limited</html>`), "sha-x", nil)

	doc, sha := repo.Load(context.Background())

	assert.Empty(t, sha, "sha of an unusable payload is not reported")
	assert.Empty(t, doc.Photos)
	assert.Empty(t, doc.Projects)
}

func TestRepository_Save(t *testing.T) {
	repo, store := newTestRepository(t)

	doc := Fallback()
	doc.Site.Name = "Jane"

	store.EXPECT().
		PutFile(gomock.Any(), testDocPath, gomock.Any(), "admin: update config.json").
		DoAndReturn(func(_ context.Context, _ string, raw []byte, _ string) (string, error) {
			assert.Contains(t, string(raw), `"name": "Jane"`)
			assert.Equal(t, byte('\n'), raw[len(raw)-1])

			return "sha-2", nil
		})

	sha, err := repo.Save(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "sha-2", sha)
}

func TestRepository_Save_ConflictSurfaces(t *testing.T) {
	repo, store := newTestRepository(t)

	conflict := &github.StoreError{Status: 409, Message: "is at abc but expected def"}
	store.EXPECT().
		PutFile(gomock.Any(), testDocPath, gomock.Any(), gomock.Any()).
		Return("", conflict)

	_, err := repo.Save(context.Background(), Fallback())

	require.Error(t, err)
	assert.True(t, github.IsConflict(err), "conflict must reach the caller unchanged")
}

func TestRepository_Raw(t *testing.T) {
	repo, store := newTestRepository(t)

	store.EXPECT().GetFile(gomock.Any(), testDocPath).Return([]byte(`{}`), "sha-3", nil)

	raw, sha, err := repo.Raw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sha-3", sha)
	assert.Equal(t, []byte(`{}`), raw)
}
