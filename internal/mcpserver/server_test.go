package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/filestore"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/query"
	"github.com/starford/raido/internal/subjectservice"
	"github.com/starford/raido/internal/syncengine"
	"github.com/starford/raido/internal/testutil"
)

func testServer(t *testing.T) (*Server, *subjectservice.Service) {
	t.Helper()

	store := testutil.TestStore(t)
	db := testutil.TestDB(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := syncengine.New(store, db, logger)
	svc := subjectservice.New(store, db, engine)
	facade := query.New(db)

	return New(store, facade, svc, engine), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper; call the handlers.
	var result *mcp.CallToolResult
	var err error
	switch name {
	case "search":
		result, err = srv.search(ctx, req)
	case "list_subjects":
		result, err = srv.listSubjects(ctx, req)
	case "subject_overview":
		result, err = srv.subjectOverview(ctx, req)
	case "list_actions":
		result, err = srv.listActions(ctx, req)
	case "add_agenda_item":
		result, err = srv.addAgendaItem(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "rebuild_index":
		result, err = srv.rebuildIndex(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seedSubject(t *testing.T, svc *subjectservice.Service) *models.Subject {
	t.Helper()
	sub, err := svc.CreateSubject(context.Background(), subjectservice.SubjectInput{
		Name: "Platform Team", Type: models.SubjectTeam,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestListSubjects(t *testing.T) {
	srv, svc := testServer(t)
	seedSubject(t, svc)

	r := callTool(t, srv, "list_subjects", map[string]any{})
	if !strings.Contains(resultText(r), "Platform Team") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestSearchTool(t *testing.T) {
	srv, svc := testServer(t)
	sub := seedSubject(t, svc)
	if _, err := svc.CreateNote(context.Background(), sub.ID, subjectservice.NoteInput{
		Title: "kubernetes runbook", Content: "restart the cluster",
	}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "search", map[string]any{"query": "kubernetes"})
	if r.IsError {
		t.Fatalf("search errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "kubernetes runbook") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "search", map[string]any{})
	if !r.IsError {
		t.Error("missing query should be an error")
	}
}

func TestSubjectOverviewTool(t *testing.T) {
	srv, svc := testServer(t)
	sub := seedSubject(t, svc)

	r := callTool(t, srv, "subject_overview", map[string]any{"subject_id": sub.ID})
	if r.IsError {
		t.Fatalf("overview errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), sub.ID) {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "subject_overview", map[string]any{"subject_id": "nope"})
	if !r.IsError {
		t.Error("unknown subject should be an error")
	}
}

func TestAddAgendaItemTool(t *testing.T) {
	srv, svc := testServer(t)
	sub := seedSubject(t, svc)

	r := callTool(t, srv, "add_agenda_item", map[string]any{
		"subject_id": sub.ID,
		"title":      "rollout plan",
		"priority":   8,
	})
	if r.IsError {
		t.Fatalf("add errored: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "created agenda item ") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestListActionsTool(t *testing.T) {
	srv, svc := testServer(t)
	sub := seedSubject(t, svc)
	if _, err := svc.CreateAction(context.Background(), sub.ID, subjectservice.ActionInput{
		Title: "update runbook",
	}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_actions", map[string]any{"timeframe": "all"})
	if r.IsError {
		t.Fatalf("list errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "update runbook") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "list_actions", map[string]any{"timeframe": "fortnight"})
	if !r.IsError {
		t.Error("bad timeframe should be an error")
	}
}

func TestReadDocumentTool(t *testing.T) {
	srv, svc := testServer(t)
	sub := seedSubject(t, svc)
	note, err := svc.CreateNote(context.Background(), sub.ID, subjectservice.NoteInput{
		Title: "runbook", Content: "restart the cluster",
	})
	if err != nil {
		t.Fatal(err)
	}

	rel := filestore.NotePath(sub.Slug(), note.ID)
	r := callTool(t, srv, "read_document", map[string]any{"path": rel})
	if r.IsError {
		t.Fatalf("read errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "restart the cluster") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "README.md"})
	if !r.IsError {
		t.Error("non-store path should be an error")
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "subjects/platform-team/notes/missing.md"})
	if !r.IsError {
		t.Error("missing file should be an error")
	}
}

func TestRebuildIndexTool(t *testing.T) {
	srv, svc := testServer(t)
	seedSubject(t, svc)

	r := callTool(t, srv, "rebuild_index", map[string]any{})
	if r.IsError {
		t.Fatalf("rebuild errored: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "rebuild complete") {
		t.Errorf("result = %q", resultText(r))
	}
}
