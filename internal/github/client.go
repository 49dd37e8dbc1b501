// Package github is a thin typed client for the GitHub repository
// contents API, the persistence backend for the portfolio. Files are
// addressed by path; writes are commits guarded by the file's current
// blob SHA (optimistic compare-and-swap).
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

const (
	apiBaseURL = "https://api.github.com"
	rawBaseURL = "https://raw.githubusercontent.com"

	apiVersion = "2022-11-28"

	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Contents API responses
	// carry whole files base64-encoded, so the cap is generous.
	maxResponseBytes = 32 * 1024 * 1024
)

// StoreError is an error returned by the contents API. Status 0 means
// the request never produced a response (network unreachable, timeout).
type StoreError struct {
	Status  int
	Message string
}

func (e *StoreError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("store: %s", e.Message)
	}

	return fmt.Sprintf("store: %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a StoreError for a missing path.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsConflict reports whether err is a StoreError caused by a stale SHA
// on a write. GitHub answers 409 for a branch-level race and 422 with a
// SHA mismatch message when the concurrency token is out of date.
func IsConflict(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}

	if se.Status == http.StatusConflict {
		return true
	}

	return se.Status == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(se.Message), "sha")
}

// IsAuth reports whether err is a StoreError for a rejected credential.
func IsAuth(err error) bool {
	var se *StoreError
	return errors.As(err, &se) &&
		(se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden)
}

// IsTransport reports whether err is a StoreError with no HTTP response.
func IsTransport(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Status == 0
}

// Repo identifies the target repository and credential. Constructed once
// at startup from config and passed into NewClient — request methods
// never consult globals.
type Repo struct {
	Owner  string
	Name   string
	Branch string
	Token  string
}

// RemoteFile is one entry of a folder listing. Not persisted; derived
// fresh on every list and joined against metadata records by name.
type RemoteFile struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	SHA    string `json:"sha"`
	Size   int64  `json:"size"`
	Folder string `json:"-"`
}

// contentsEntry is the API's representation of a file or directory.
type contentsEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client talks to the GitHub contents API for a single repository.
type Client struct {
	httpClient *http.Client
	baseURL    string
	rawURL     string
	repo       Repo
	logger     *slog.Logger

	// listGroup collapses concurrent listings of the same folder into
	// one API call. Refresh storms after batch uploads are common.
	listGroup singleflight.Group
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a contents API client for the given repository.
// If httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is created.
func NewClient(repo Repo, logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    apiBaseURL,
		rawURL:     rawBaseURL,
		repo:       repo,
		logger:     logger,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// contentsPath returns the API path for a repository file path.
func (c *Client) contentsPath(path string) string {
	return fmt.Sprintf("/repos/%s/%s/contents/%s", c.repo.Owner, c.repo.Name, path)
}

// do sends a request with auth headers and returns the body and status.
// Transport failures come back as a StoreError with status 0; non-2xx
// statuses as a StoreError carrying the API's message field.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.repo.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StoreError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &StoreError{Status: 0, Message: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && ae.Message != "" {
			return nil, &StoreError{Status: resp.StatusCode, Message: ae.Message}
		}

		return nil, &StoreError{Status: resp.StatusCode, Message: sanitizeResponseBody(respBody)}
	}

	return respBody, nil
}

// ListFolder returns the files in a repository folder. It fails soft:
// any transport or API error yields an empty slice, since a missing
// folder is a normal state (nothing uploaded yet) and listing failures
// should degrade to "no files" rather than block the editor. Errors are
// logged so they stay observable. Directories and dotfiles are skipped.
// Concurrent listings of the same folder share one API call.
func (c *Client) ListFolder(ctx context.Context, folder string) []RemoteFile {
	v, err, _ := c.listGroup.Do(folder, func() (interface{}, error) {
		return c.listFolder(ctx, folder), nil
	})
	if err != nil {
		return nil
	}

	files, _ := v.([]RemoteFile)

	return files
}

func (c *Client) listFolder(ctx context.Context, folder string) []RemoteFile {
	body, err := c.do(ctx, http.MethodGet, c.contentsPath(folder)+"?ref="+c.repo.Branch, nil)
	if err != nil {
		c.logger.Warn("listing folder failed, treating as empty",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)

		return nil
	}

	var entries []contentsEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		// A single-file response decodes as an object, not an array.
		// Either way this is not a folder of files.
		c.logger.Warn("unexpected folder listing shape, treating as empty",
			slog.String("folder", folder),
		)

		return nil
	}

	files := make([]RemoteFile, 0, len(entries))

	for _, e := range entries {
		if e.Type != "file" || strings.HasPrefix(e.Name, ".") {
			continue
		}

		files = append(files, RemoteFile{
			Name:   e.Name,
			Path:   e.Path,
			SHA:    e.SHA,
			Size:   e.Size,
			Folder: folder,
		})
	}

	return files
}

// FileSHA returns the current blob SHA for a path, or "" when the file
// does not exist. Used to decide create-vs-update before a write.
func (c *Client) FileSHA(ctx context.Context, path string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.contentsPath(path)+"?ref="+c.repo.Branch, nil)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}

		return "", fmt.Errorf("resolving sha for %s: %w", path, err)
	}

	var entry contentsEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return "", fmt.Errorf("decoding contents response for %s: %w", path, err)
	}

	return entry.SHA, nil
}

// GetFile reads a file's raw bytes and its blob SHA. The API embeds
// newlines in the base64 payload; they are stripped before decoding.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	body, err := c.do(ctx, http.MethodGet, c.contentsPath(path)+"?ref="+c.repo.Branch, nil)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}

	var entry contentsEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, "", fmt.Errorf("decoding contents response for %s: %w", path, err)
	}

	encoded := strings.ReplaceAll(entry.Content, "\n", "")

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decoding content of %s: %w", path, err)
	}

	return raw, entry.SHA, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// PutFile writes raw bytes to a path as a commit, resolving the current
// SHA first so existing files are updated rather than rejected. Returns
// the new blob SHA. A stale SHA surfaces as a conflict StoreError — the
// caller decides whether to reload or retry.
func (c *Client) PutFile(ctx context.Context, path string, raw []byte, message string) (string, error) {
	sha, err := c.FileSHA(ctx, path)
	if err != nil {
		return "", err
	}

	return c.PutFileWithSHA(ctx, path, raw, sha, message)
}

// PutFileWithSHA writes raw bytes using a SHA the caller already holds.
// An empty SHA means "create"; the API rejects it if the file exists.
func (c *Client) PutFileWithSHA(ctx context.Context, path string, raw []byte, sha, message string) (string, error) {
	req := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(raw),
		Branch:  c.repo.Branch,
		SHA:     sha,
	}

	body, err := c.do(ctx, http.MethodPut, c.contentsPath(path), req)
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	var resp putResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding write response for %s: %w", path, err)
	}

	return resp.Content.SHA, nil
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

// DeleteFile removes a file. The SHA is mandatory — there are no blind
// deletes; a stale SHA surfaces as a conflict StoreError.
func (c *Client) DeleteFile(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		return fmt.Errorf("deleting %s: sha is required", path)
	}

	req := deleteRequest{
		Message: message,
		SHA:     sha,
		Branch:  c.repo.Branch,
	}

	if _, err := c.do(ctx, http.MethodDelete, c.contentsPath(path), req); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}

	return nil
}

// RawURL returns the raw-content URL for a file, used for previews.
func (c *Client) RawURL(folder, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s",
		c.rawURL, c.repo.Owner, c.repo.Name, c.repo.Branch, folder, filename)
}
