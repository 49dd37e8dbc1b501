package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates a Client pointed at the given httptest server.
func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		rawURL:     "https://raw.example.com",
		repo: Repo{
			Owner:  "jane",
			Name:   "portfolio",
			Branch: "main",
			Token:  "tok123",
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// --- do() internals ---

func TestDo_SetsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, apiVersion, r.Header.Get("X-GitHub-Api-Version"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.do(context.Background(), http.MethodGet, "/test", nil)
	require.NoError(t, err)
}

func TestDo_NonOKStatusWithMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.do(context.Background(), http.MethodGet, "/test", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials")
	assert.True(t, IsAuth(err))
}

func TestDo_NonOKStatusWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.do(context.Background(), http.MethodGet, "/test", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "Internal Server Error")
}

func TestDo_TransportErrorHasStatusZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close() // connection refused from here on

	_, err := c.do(context.Background(), http.MethodGet, "/test", nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.False(t, IsNotFound(err))
}

// --- error taxonomy ---

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"409", &StoreError{Status: 409, Message: "is at x but expected y"}, true},
		{"422 sha mismatch", &StoreError{Status: 422, Message: "portfolio/config.json does not match sha"}, true},
		{"422 other", &StoreError{Status: 422, Message: "Invalid request"}, false},
		{"404", &StoreError{Status: 404, Message: "Not Found"}, false},
		{"nil-ish", io.EOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflict(tt.err))
		})
	}
}

// --- ListFolder ---

func TestListFolder_FiltersDirsAndDotfiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/jane/portfolio/contents/public/photos", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Write([]byte(`[
			{"name":"a.jpg","path":"public/photos/a.jpg","sha":"s1","size":10,"type":"file"},
			{"name":".gitkeep","path":"public/photos/.gitkeep","sha":"s2","size":0,"type":"file"},
			{"name":"sub","path":"public/photos/sub","sha":"s3","size":0,"type":"dir"},
			{"name":"b.png","path":"public/photos/b.png","sha":"s4","size":20,"type":"file"}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	files := c.ListFolder(context.Background(), "public/photos")
	require.Len(t, files, 2)
	assert.Equal(t, "a.jpg", files[0].Name)
	assert.Equal(t, "s1", files[0].SHA)
	assert.Equal(t, "public/photos", files[0].Folder)
	assert.Equal(t, "b.png", files[1].Name)
}

func TestListFolder_MissingFolderIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	files := c.ListFolder(context.Background(), "public/photos")
	assert.Empty(t, files)
}

func TestListFolder_TransportErrorIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	files := c.ListFolder(context.Background(), "public/photos")
	assert.Empty(t, files)
}

func TestListFolder_SingleFileShapeIsEmpty(t *testing.T) {
	// Listing a path that is a file returns an object, not an array.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"a.jpg","type":"file"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	files := c.ListFolder(context.Background(), "public/photos/a.jpg")
	assert.Empty(t, files)
}

// --- FileSHA ---

func TestFileSHA_Exists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"config.json","sha":"abc123","type":"file"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	sha, err := c.FileSHA(context.Background(), "public/config.json")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestFileSHA_MissingIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	sha, err := c.FileSHA(context.Background(), "public/config.json")
	require.NoError(t, err)
	assert.Empty(t, sha)
}

func TestFileSHA_AuthErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.FileSHA(context.Background(), "public/config.json")
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

// --- GetFile ---

func TestGetFile_DecodesNewlineEmbeddedBase64(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte(`{"site":{}}`))
	// The API wraps base64 at 60 columns; simulate with an embedded newline.
	wrapped := content[:8] + "\n" + content[8:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, _ := json.Marshal(map[string]interface{}{
			"name":    "config.json",
			"sha":     "deadbeef",
			"type":    "file",
			"content": wrapped,
		})
		w.Write(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	raw, sha, err := c.GetFile(context.Background(), "public/config.json")
	require.NoError(t, err)
	assert.Equal(t, `{"site":{}}`, string(raw))
	assert.Equal(t, "deadbeef", sha)
}

// --- PutFile ---

func TestPutFile_NewFileOmitsSHA(t *testing.T) {
	var putBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &putBody))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"content":{"sha":"newsha"}}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	sha, err := c.PutFile(context.Background(), "public/photos/new.jpg", []byte("img"), "upload new.jpg")
	require.NoError(t, err)
	assert.Equal(t, "newsha", sha)

	assert.Equal(t, "upload new.jpg", putBody["message"])
	assert.Equal(t, "main", putBody["branch"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("img")), putBody["content"])
	_, hasSHA := putBody["sha"]
	assert.False(t, hasSHA, "sha must be omitted when creating a file")
}

func TestPutFile_ExistingFileIncludesSHA(t *testing.T) {
	var putBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"name":"config.json","sha":"oldsha","type":"file"}`))
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &putBody))
			w.Write([]byte(`{"content":{"sha":"newsha"}}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PutFile(context.Background(), "public/config.json", []byte("{}"), "update")
	require.NoError(t, err)
	assert.Equal(t, "oldsha", putBody["sha"])
}

func TestPutFile_StaleSHAIsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"name":"config.json","sha":"stale","type":"file"}`))
		case http.MethodPut:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"public/config.json is at abc but expected stale"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PutFile(context.Background(), "public/config.json", []byte("{}"), "update")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

// --- DeleteFile ---

func TestDeleteFile_SendsSHAAndBranch(t *testing.T) {
	var delBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &delBody))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.DeleteFile(context.Background(), "public/photos/a.jpg", "s1", "delete a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "s1", delBody["sha"])
	assert.Equal(t, "main", delBody["branch"])
	assert.Equal(t, "delete a.jpg", delBody["message"])
}

func TestDeleteFile_RequiresSHA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for a blind delete")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.DeleteFile(context.Background(), "public/photos/a.jpg", "", "delete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha is required")
}

// --- RawURL ---

func TestRawURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(srv)
	assert.Equal(t,
		"https://raw.example.com/jane/portfolio/main/public/photos/a.jpg",
		c.RawURL("public/photos", "a.jpg"),
	)
}
