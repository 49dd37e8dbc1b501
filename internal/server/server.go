// Package server exposes the editing session over a JSON HTTP API for
// the browser admin. It renders nothing: the static portfolio is built
// elsewhere, this process only edits the data it reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/larsvig/folio-admin/internal/auth"
	"github.com/larsvig/folio-admin/internal/cache"
	"github.com/larsvig/folio-admin/internal/document"
	"github.com/larsvig/folio-admin/internal/github"
	"github.com/larsvig/folio-admin/internal/reconcile"
	"github.com/larsvig/folio-admin/internal/session"
	"github.com/larsvig/folio-admin/internal/upload"
)

// maxUploadBytes caps a single multipart upload request.
const maxUploadBytes = 64 << 20

// Store is the slice of the remote store client the handlers need.
type Store interface {
	ListFolder(ctx context.Context, folder string) []github.RemoteFile
	GetFile(ctx context.Context, path string) ([]byte, string, error)
	DeleteFile(ctx context.Context, path, sha, message string) error
}

// Server wires the session, queue, cache, and store into a chi router.
type Server struct {
	store   Store
	session *session.Session
	queue   *upload.Queue
	cache   *cache.Cache
	gate    *auth.Gate
	logger  *slog.Logger

	// folders maps the API folder keys (photos, svgs, cv) to repo paths.
	folders map[string]string

	// baseCtx outlives individual requests; background queue runs hang
	// off it instead of a request context.
	baseCtx context.Context

	now func() time.Time
}

// New assembles a server. folders must contain the photos, svgs, and cv
// keys.
func New(
	baseCtx context.Context,
	store Store,
	sess *session.Session,
	queue *upload.Queue,
	previews *cache.Cache,
	gate *auth.Gate,
	folders map[string]string,
	logger *slog.Logger,
) *Server {
	return &Server{
		store:   store,
		session: sess,
		queue:   queue,
		cache:   previews,
		gate:    gate,
		logger:  logger,
		folders: folders,
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Post("/api/login", s.handleLogin)

	// The websocket handshake cannot carry an Authorization header from
	// a browser, so the events route validates its token itself.
	r.Get("/api/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(s.gate.Middleware)

		r.Get("/api/document", s.handleDocument)
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/save", s.handleSave)
		r.Post("/api/discard", s.handleDiscard)
		r.Get("/api/conflict-diff", s.handleConflictDiff)

		r.Get("/api/photos", s.handlePhotos)
		r.Get("/api/svgs", s.handleSvgs)
		r.Get("/api/cv-files", s.handleCVFiles)

		r.Patch("/api/photos/{filename}", s.handlePatchPhoto)
		r.Patch("/api/svgs/{filename}", s.handlePatchSvg)
		r.Post("/api/svgs/{filename}/assign", s.handleAssignSvg)

		r.Post("/api/projects", s.handleCreateProject)
		r.Patch("/api/projects/{id}", s.handlePatchProject)
		r.Delete("/api/projects/{id}", s.handleDeleteProject)

		r.Patch("/api/site", s.handlePatchSite)
		r.Patch("/api/cv", s.handlePatchCV)

		r.Post("/api/upload/{folder}", s.handleUpload)
		r.Post("/api/upload/run", s.handleUploadRun)
		r.Get("/api/upload/queue", s.handleUploadQueue)
		r.Post("/api/upload/clear", s.handleUploadClear)

		r.Delete("/api/files/{folder}/{filename}", s.handleDeleteFile)
		r.Get("/api/preview/{folder}/{filename}", s.handlePreview)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// folderPath resolves an API folder key to its repo path, or "".
func (s *Server) folderPath(key string) string {
	return s.folders[key]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	token, ok := s.gate.Login(req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid password")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Document())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dirty":     s.session.Dirty(),
		"saving":    s.session.Saving(),
		"uploading": s.queue.Running(),
		"sha":       s.session.SHA(),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	err := s.session.Save(r.Context())

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrSaveInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case github.IsConflict(err):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    err.Error(),
			"conflict": true,
		})
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.session.Discard(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConflictDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.session.ConflictDiff(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	files := s.store.ListFolder(r.Context(), s.folderPath("photos"))
	merged := reconcile.Photos(files, s.session.Document().Photos, s.now())

	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleSvgs(w http.ResponseWriter, r *http.Request) {
	files := s.store.ListFolder(r.Context(), s.folderPath("svgs"))
	merged := reconcile.SVGs(files, s.session.Document().Svgs)

	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleCVFiles(w http.ResponseWriter, r *http.Request) {
	files := s.store.ListFolder(r.Context(), s.folderPath("cv"))
	writeJSON(w, http.StatusOK, files)
}

// patchInto merges a JSON request body over base. Fields absent from
// the body keep their current values.
func patchInto(r *http.Request, base any) error {
	return json.NewDecoder(r.Body).Decode(base)
}

func (s *Server) handlePatchPhoto(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	doc := s.session.Document()

	rec := document.PhotoRecord{
		Filename:    filename,
		DisplayName: reconcile.DisplayName(filename),
		Year:        s.now().Format("2006"),
		Order:       document.DefaultOrder,
	}
	if existing := doc.Photo(filename); existing != nil {
		rec = *existing
	}

	if err := patchInto(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	rec.Filename = filename
	s.session.Update(document.UpsertPhoto(rec))

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePatchSvg(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	doc := s.session.Document()

	rec := document.SvgRecord{
		Filename:    filename,
		DisplayName: reconcile.DisplayName(filename),
		Slot:        document.SlotCard,
	}
	if existing := doc.Svg(filename); existing != nil {
		rec = *existing
	}

	base := rec

	if err := patchInto(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	// Project and slot form one half of a two-way link that only the
	// assign endpoint may touch; a metadata patch cannot move them.
	rec.Filename = filename
	rec.Project = base.Project
	rec.Slot = base.Slot

	s.session.Update(document.UpsertSvg(rec))

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAssignSvg(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	var req struct {
		Project string `json:"project"`
		Slot    string `json:"slot"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.Project != "" && s.session.Document().Project(req.Project) == nil {
		writeError(w, http.StatusNotFound, "unknown project")

		return
	}

	rec := document.SvgRecord{
		Filename:    filename,
		DisplayName: reconcile.DisplayName(filename),
	}
	if existing := s.session.Document().Svg(filename); existing != nil {
		rec = *existing
	}

	s.session.Update(document.AssignSvg(rec, req.Project, req.Slot))

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	rec := document.NewProject(uuid.NewString(), s.now())

	if r.Body != nil && r.ContentLength != 0 {
		if err := patchInto(r, &rec); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")

			return
		}
	}

	s.session.Update(document.AddProject(rec))

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing := s.session.Document().Project(id)
	if existing == nil {
		writeError(w, http.StatusNotFound, "unknown project")

		return
	}

	rec := *existing
	if err := patchInto(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	rec.ID = id
	s.session.Update(document.ReplaceProject(rec))

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.session.Document().Project(id) == nil {
		writeError(w, http.StatusNotFound, "unknown project")

		return
	}

	s.session.Update(document.RemoveProject(id))

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchSite(w http.ResponseWriter, r *http.Request) {
	site := s.session.Document().Site

	if err := patchInto(r, &site); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	s.session.Update(document.SetSite(site))

	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handlePatchCV(w http.ResponseWriter, r *http.Request) {
	cv := s.session.Document().CV

	if err := patchInto(r, &cv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	s.session.Update(document.SetCV(cv))

	writeJSON(w, http.StatusOK, cv)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	folder := s.folderPath(chi.URLParam(r, "folder"))
	if folder == "" {
		writeError(w, http.StatusNotFound, "unknown folder")

		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")

		return
	}

	var ids []string

	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file part")

			return
		}

		data := make([]byte, header.Size)
		if _, err := io.ReadFull(f, data); err != nil {
			f.Close()
			writeError(w, http.StatusBadRequest, "unreadable file part")

			return
		}
		f.Close()

		name := path.Base(header.Filename)
		ids = append(ids, s.queue.Add(folder, name, data))
	}

	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")

		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"queued": ids})
}

func (s *Server) handleUploadRun(w http.ResponseWriter, _ *http.Request) {
	// Uploads outlive the request; the queue itself makes a second run
	// a no-op.
	go s.queue.Run(s.baseCtx)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUploadQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Items())
}

func (s *Server) handleUploadClear(w http.ResponseWriter, _ *http.Request) {
	s.queue.ClearFinished()
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteFile removes a physical file and its metadata record in
// one session update, so no orphan record survives the delete.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	folderKey := chi.URLParam(r, "folder")
	filename := chi.URLParam(r, "filename")

	folder := s.folderPath(folderKey)
	if folder == "" {
		writeError(w, http.StatusNotFound, "unknown folder")

		return
	}

	sha := r.URL.Query().Get("sha")
	if sha == "" {
		writeError(w, http.StatusBadRequest, "sha query parameter required")

		return
	}

	filePath := folder + "/" + filename
	if err := s.store.DeleteFile(r.Context(), filePath, sha, "admin: delete "+filename); err != nil {
		if github.IsConflict(err) || github.IsNotFound(err) {
			writeError(w, http.StatusConflict, err.Error())

			return
		}

		writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	switch folderKey {
	case "photos":
		s.session.Update(document.RemovePhoto(filename))
	case "svgs":
		s.session.Update(document.RemoveSvg(filename))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	folder := s.folderPath(chi.URLParam(r, "folder"))
	filename := chi.URLParam(r, "filename")

	if folder == "" {
		writeError(w, http.StatusNotFound, "unknown folder")

		return
	}

	sha := r.URL.Query().Get("sha")

	if sha != "" {
		cached, err := s.cache.Get(sha)
		if err != nil {
			s.logger.Warn("preview cache read failed", slog.String("error", err.Error()))
		}

		if cached != nil {
			s.servePreview(w, filename, cached)

			return
		}
	}

	data, gotSHA, err := s.store.GetFile(r.Context(), folder+"/"+filename)
	if err != nil {
		if github.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "file not found")

			return
		}

		writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	if err := s.cache.Put(gotSHA, data); err != nil {
		s.logger.Warn("preview cache write failed", slog.String("error", err.Error()))
	}

	s.servePreview(w, filename, data)
}

func (s *Server) servePreview(w http.ResponseWriter, filename string, data []byte) {
	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}

// handleEvents upgrades to a websocket and streams session events. The
// bearer token arrives as a query parameter because browser websocket
// clients cannot set headers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if !s.gate.Valid(token) {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))

		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancel := s.session.Subscribe()
	defer cancel()

	// CloseRead pumps the read side so pings are answered and gives us
	// a context that ends when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.baseCtx.Done():
			return
		case evt := <-events:
			if err := wsjson.Write(ctx, conn, evt); err != nil {
				return
			}
		}
	}
}
