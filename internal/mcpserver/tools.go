// Package mcpserver registers MCP tools that expose the editing
// session to agent tooling. It adapts the session and reconciler to the
// MCP SDK's tool handler interface; agents share the one session with
// the browser admin, so their edits show up live.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/larsvig/folio-admin/internal/document"
	"github.com/larsvig/folio-admin/internal/github"
	"github.com/larsvig/folio-admin/internal/reconcile"
	"github.com/larsvig/folio-admin/internal/session"
)

// Lister is the folder-listing slice of the store client.
type Lister interface {
	ListFolder(ctx context.Context, folder string) []github.RemoteFile
}

// Deps holds everything the tool handlers need.
type Deps struct {
	Session *session.Session
	Store   Lister

	// PhotosFolder and SvgsFolder are the repo paths behind the listing
	// tools.
	PhotosFolder string
	SvgsFolder   string
}

// RegisterTools adds all portfolio tools to the given MCP server.
func RegisterTools(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_status",
		Description: "Report the editing session state: whether there are unsaved changes and whether a save is in flight.",
	}, statusHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_document",
		Description: "Return the full portfolio document currently being edited (site, photos, svgs, projects, cv).",
	}, documentHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_list_photos",
		Description: "List photos with metadata merged from the remote folder and the document. Entries without a saved record are marked synthesized.",
	}, listPhotosHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_list_svgs",
		Description: "List SVG drawings with their project/slot assignments, merged from the remote folder and the document.",
	}, listSvgsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_list_projects",
		Description: "List all project records from the document.",
	}, listProjectsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_update_photo",
		Description: "Update photo metadata by filename. Only the provided fields change; the edit stays unsaved until portfolio_save.",
	}, updatePhotoHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "portfolio_save",
		Description: "Commit all unsaved edits to the remote store. Fails with a conflict error if the document changed remotely since it was loaded.",
	}, saveHandler(deps))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// DocumentInput has no parameters.
type DocumentInput struct{}

// ListInput has no parameters.
type ListInput struct{}

// UpdatePhotoInput holds parameters for portfolio_update_photo.
type UpdatePhotoInput struct {
	Filename    string  `json:"filename" jsonschema:"required,photo filename as listed by portfolio_list_photos"`
	DisplayName *string `json:"display_name,omitempty" jsonschema:"human-readable name"`
	Year        *string `json:"year,omitempty" jsonschema:"display year"`
	Category    *string `json:"category,omitempty" jsonschema:"gallery category"`
	Project     *string `json:"project,omitempty" jsonschema:"project id this photo belongs to, empty to detach"`
	Caption     *string `json:"caption,omitempty" jsonschema:"caption text"`
	Order       *int    `json:"order,omitempty" jsonschema:"sort order, lower first"`
}

// SaveInput has no parameters.
type SaveInput struct{}

// --- Result types ---

// StatusResult reports the session state.
type StatusResult struct {
	Dirty  bool `json:"dirty"`
	Saving bool `json:"saving"`
}

// SaveResult reports the save outcome.
type SaveResult struct {
	Saved bool `json:"saved"`
}

// --- Handlers ---

func statusHandler(deps Deps) mcp.ToolHandlerFor[StatusInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		result := &StatusResult{
			Dirty:  deps.Session.Dirty(),
			Saving: deps.Session.Saving(),
		}

		return textResult(result), result, nil
	}
}

func documentHandler(deps Deps) mcp.ToolHandlerFor[DocumentInput, *document.Document] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ DocumentInput) (*mcp.CallToolResult, *document.Document, error) {
		result := deps.Session.Document()

		return textResult(result), result, nil
	}
}

func listPhotosHandler(deps Deps) mcp.ToolHandlerFor[ListInput, []reconcile.MergedPhoto] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, []reconcile.MergedPhoto, error) {
		files := deps.Store.ListFolder(ctx, deps.PhotosFolder)
		result := reconcile.Photos(files, deps.Session.Document().Photos, time.Now())

		return textResult(result), result, nil
	}
}

func listSvgsHandler(deps Deps) mcp.ToolHandlerFor[ListInput, []reconcile.MergedSVG] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, []reconcile.MergedSVG, error) {
		files := deps.Store.ListFolder(ctx, deps.SvgsFolder)
		result := reconcile.SVGs(files, deps.Session.Document().Svgs)

		return textResult(result), result, nil
	}
}

func listProjectsHandler(deps Deps) mcp.ToolHandlerFor[ListInput, []document.ProjectRecord] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, []document.ProjectRecord, error) {
		result := deps.Session.Document().Projects

		return textResult(result), result, nil
	}
}

func updatePhotoHandler(deps Deps) mcp.ToolHandlerFor[UpdatePhotoInput, *document.PhotoRecord] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input UpdatePhotoInput) (*mcp.CallToolResult, *document.PhotoRecord, error) {
		if input.Filename == "" {
			return nil, nil, fmt.Errorf("filename is required")
		}

		rec := document.PhotoRecord{
			Filename:    input.Filename,
			DisplayName: reconcile.DisplayName(input.Filename),
			Year:        time.Now().Format("2006"),
			Order:       document.DefaultOrder,
		}
		if existing := deps.Session.Document().Photo(input.Filename); existing != nil {
			rec = *existing
		}

		if input.DisplayName != nil {
			rec.DisplayName = *input.DisplayName
		}

		if input.Year != nil {
			rec.Year = *input.Year
		}

		if input.Category != nil {
			rec.Category = *input.Category
		}

		if input.Project != nil {
			rec.Project = *input.Project
		}

		if input.Caption != nil {
			rec.Caption = *input.Caption
		}

		if input.Order != nil {
			rec.Order = *input.Order
		}

		deps.Session.Update(document.UpsertPhoto(rec))

		return textResult(&rec), &rec, nil
	}
}

func saveHandler(deps Deps) mcp.ToolHandlerFor[SaveInput, *SaveResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SaveInput) (*mcp.CallToolResult, *SaveResult, error) {
		if err := deps.Session.Save(ctx); err != nil {
			return nil, nil, err
		}

		result := &SaveResult{Saved: true}

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
