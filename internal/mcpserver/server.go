// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quire notes to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/notestore"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/plaintext"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/session"
)

const (
	defaultSearchLimit = 20
	querySyntaxURI     = "quire://query-syntax"
)

// Server wraps the MCP server with Quire tools.
type Server struct {
	mcp    *server.MCPServer
	store  *notestore.Store
	logger *slog.Logger
}

// SearchHit is one search_notes result.
type SearchHit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Score     int       `json:"score"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new MCP server with all Quire tools registered.
func New(store *notestore.Store, logger *slog.Logger) *Server {
	s := &Server{store: store, logger: logger}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note titles and bodies. Supports +required, -excluded and \"exact phrase\" terms; "+
			"see the "+querySyntaxURI+" resource."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("format", mcp.Description("txt (default), md or json")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The content is plain text; line breaks are kept."),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain-text body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes, newest first, one \"id<TAB>timestamp<TAB>title\" line each."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("export_notes",
		mcp.WithDescription("Export the whole collection as the JSON array accepted by the import surface."),
	), s.exportNotes)

	s.mcp.AddResource(
		mcp.NewResource(querySyntaxURI, "Search Query Syntax",
			mcp.WithResourceDescription("Query language accepted by search_notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// refresh reloads the collection so edits made by another process sharing
// the storage are visible.
func (s *Server) refresh() {
	if err := s.store.LoadAll(); err != nil {
		s.logger.Warn("mcp: reload notes", slog.String("error", err.Error()))
	}
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	s.refresh()
	tokens := parser.Parse(query)
	ranked := search.Rank(s.store.Notes(), tokens)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	hits := make([]SearchHit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, SearchHit{
			ID:        r.Note.ID,
			Title:     r.Note.Title,
			Score:     r.Score,
			Snippet:   search.Snippet(plaintext.Text(r.Note.Content), tokens).Text,
			Timestamp: r.Note.Timestamp,
		})
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := strings.ToLower(req.GetString("format", notestore.FormatText))

	s.refresh()
	if format == "json" {
		n, ok := s.store.Get(id)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		out, _ := json.MarshalIndent(n, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}

	exp, err := s.store.ExportNote(id, format)
	if notestore.IsNotFound(err) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(exp.Data)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title := req.GetString("title", "")

	s.refresh()
	n, err := s.store.Create()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.Update(n.ID, title, session.PlainPaste(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("mcp: note created", slog.String("id", n.ID))
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.refresh()
	notes := s.store.Notes()
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}

	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, n.ID+"\t"+n.Timestamp.Format(time.RFC3339)+"\t"+title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) exportNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.refresh()
	exp, err := s.store.ExportAll()
	if notestore.IsNotFound(err) {
		return mcp.NewToolResultText("[]"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(exp.Data)), nil
}

func (s *Server) readQuerySyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      querySyntaxURI,
			MIMEType: "text/markdown",
			Text:     QuerySyntax,
		},
	}, nil
}
