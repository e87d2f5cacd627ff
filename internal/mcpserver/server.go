// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/filestore"
	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/subjectservice"
	"github.com/starford/raido/internal/syncengine"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp    *server.MCPServer
	store  *filestore.Store
	facade *query.Facade
	svc    *subjectservice.Service
	engine *syncengine.Engine
}

// New creates a new MCP server with all Raido tools registered.
func New(store *filestore.Store, facade *query.Facade, svc *subjectservice.Service, engine *syncengine.Engine) *Server {
	s := &Server{store: store, facade: facade, svc: svc, engine: engine}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Full-text search across subjects, agenda items, meetings, actions and notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("types", mcp.Description("Optional comma-separated content types (subject, agenda, meeting, action, note)")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("list_subjects",
		mcp.WithDescription("List all subjects, most recently reviewed first."),
	), s.listSubjects)

	s.mcp.AddTool(mcp.NewTool("subject_overview",
		mcp.WithDescription("Full detail of one subject: agenda, open actions, meetings and notes."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("Subject id")),
	), s.subjectOverview)

	s.mcp.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List actions due in a timeframe, soonest first."),
		mcp.WithString("timeframe", mcp.Description("One of today, week, next_week, all (default all)")),
	), s.listActions)

	s.mcp.AddTool(mcp.NewTool("add_agenda_item",
		mcp.WithDescription("Add an item to a subject's agenda."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("Subject id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
		mcp.WithNumber("priority", mcp.Description("Priority 1-10 (default 5)")),
	), s.addAgendaItem)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the raw content of a store file, e.g. subjects/<slug>/notes/<id>.md."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Store-relative path of the document")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the whole query index from the files on disk."),
	), s.rebuildIndex)

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

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var types []string
	if raw, err := req.RequireString("types"); err == nil && raw != "" {
		types = strings.Split(raw, ",")
	}
	results, err := s.facade.Search(q, types)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSubjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subs, err := s.facade.Subjects()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(subs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) subjectOverview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("subject_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ov, err := s.facade.SubjectOverview(id, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(ov, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := ""
	if v, err := req.RequireString("timeframe"); err == nil {
		raw = v
	}
	tf, err := query.ParseTimeframe(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actions, err := s.facade.ActionsByTimeframe(tf, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(actions, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addAgendaItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := req.RequireString("subject_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	priority := req.GetInt("priority", 5)

	item, err := s.svc.AddAgendaItem(ctx, subjectID, subjectservice.AgendaInput{
		Title:    title,
		Priority: priority,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created agenda item %s", item.ID)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, _, ok := filestore.KindOfPath(rel); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not a store document: %s", rel)), nil
	}
	data, err := s.store.Read(rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", rel, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) rebuildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"rebuild complete: %d reconciled, %d removed, %d spawned, %d archived, %d warnings",
		res.Reconciled, res.Removed, res.Spawned, res.Archived, len(res.Warnings))), nil
}
