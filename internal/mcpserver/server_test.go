package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/storage"
	"github.com/starford/ucdcanvas/internal/testutil"
)

var docArgs = map[string]any{"project": "p1", "stage": "s1", "document": "d1"}

func testServer(t *testing.T) (*Server, *documents.Store) {
	t.Helper()

	store := testutil.TestStore(t, nil)
	mgr := editor.NewManager(store, blocks.Default(), editor.WithLogger(testutil.QuietLogger()))
	return New(mgr, store), store
}

func with(extra map[string]any) map[string]any {
	out := make(map[string]any, len(docArgs)+len(extra))
	for k, v := range docArgs {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_block_templates":
		result, err = srv.listBlockTemplates(ctx, req)
	case "get_document":
		result, err = srv.getDocument(ctx, req)
	case "add_block":
		result, err = srv.addBlock(ctx, req)
	case "update_block":
		result, err = srv.updateBlock(ctx, req)
	case "connect_blocks":
		result, err = srv.connectBlocks(ctx, req)
	case "remove_block":
		result, err = srv.removeBlock(ctx, req)
	case "save_document":
		result, err = srv.saveDocument(ctx, req)
	case "search_blocks":
		result, err = srv.searchBlocks(ctx, req)
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

func addBlock(t *testing.T, srv *Server, args map[string]any) canvas.Node {
	t.Helper()
	r := callTool(t, srv, "add_block", with(args))
	if r.IsError {
		t.Fatalf("add_block: %s", resultText(r))
	}
	var n canvas.Node
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	return n
}

func TestListBlockTemplates(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_block_templates", nil)
	var doc schemaDoc
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Blocks) != 7 {
		t.Fatalf("blocks = %d, want 7", len(doc.Blocks))
	}
	if doc.Blocks[0].Type != blocks.FunctionalReq {
		t.Errorf("first block = %s", doc.Blocks[0].Type)
	}
	if len(doc.Rules) == 0 {
		t.Error("rules missing")
	}
}

func TestBuildAndSaveDocument(t *testing.T) {
	srv, store := testServer(t)

	story := addBlock(t, srv, map[string]any{"block_type": "USER_STORY"})
	if story.Position != canvas.DefaultPosition {
		t.Errorf("default position = %+v", story.Position)
	}
	req := addBlock(t, srv, map[string]any{"block_type": "FUNCTIONAL_REQ", "x": 400.0, "y": 0.0})
	if req.Position != (canvas.Point{X: 400}) {
		t.Errorf("explicit position = %+v", req.Position)
	}

	r := callTool(t, srv, "update_block", with(map[string]any{
		"node_id": story.ID,
		"content": `{"story":"As an auditor I want exports","points":8}`,
	}))
	if r.IsError {
		t.Fatalf("update_block: %s", resultText(r))
	}

	r = callTool(t, srv, "connect_blocks", with(map[string]any{"source": req.ID, "target": story.ID}))
	if r.IsError {
		t.Fatalf("connect_blocks: %s", resultText(r))
	}

	r = callTool(t, srv, "save_document", docArgs)
	if got := resultText(r); got != "saved: document-p1-s1-d1" {
		t.Errorf("save result = %q", got)
	}

	doc, found, err := store.Load(context.Background(), storage.Key{ProjectID: "p1", StageID: "s1", DocumentID: "d1"})
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if nodes, edges := doc.Len(); nodes != 2 || edges != 1 {
		t.Errorf("stored %d nodes, %d edges", nodes, edges)
	}

	r = callTool(t, srv, "search_blocks", map[string]any{"query": "auditor"})
	if !strings.Contains(resultText(r), story.ID) {
		t.Errorf("search result = %s", resultText(r))
	}

	r = callTool(t, srv, "remove_block", with(map[string]any{"node_id": story.ID}))
	if r.IsError {
		t.Fatalf("remove_block: %s", resultText(r))
	}
	r = callTool(t, srv, "get_document", docArgs)
	var got struct {
		Snapshot canvas.Snapshot `json:"snapshot"`
		Status   editor.Status   `json:"status"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Snapshot.Nodes) != 1 || len(got.Snapshot.Edges) != 0 || !got.Status.Dirty {
		t.Errorf("after remove: %+v", got)
	}
}

func TestToolErrors(t *testing.T) {
	srv, _ := testServer(t)
	n := addBlock(t, srv, map[string]any{"block_type": "NOTES"})

	cases := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"unknown type", "add_block", with(map[string]any{"block_type": "EPIC"})},
		{"missing key", "get_document", map[string]any{"project": "p1"}},
		{"self loop", "connect_blocks", with(map[string]any{"source": n.ID, "target": n.ID})},
		{"content not json", "update_block", with(map[string]any{"node_id": n.ID, "content": "text"})},
		{"unknown field", "update_block", with(map[string]any{"node_id": n.ID, "content": `{"colour":"red"}`})},
		{"unknown node", "remove_block", with(map[string]any{"node_id": "ghost"})},
	}
	for _, tc := range cases {
		if r := callTool(t, srv, tc.tool, tc.args); !r.IsError {
			t.Errorf("%s: expected error, got %q", tc.name, resultText(r))
		}
	}
}

func TestBlockSchemaResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readBlockSchemaResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != BlockSchemaURI || !strings.Contains(tc.Text, `"points"`) {
		t.Errorf("resource = %+v", contents[0])
	}
}
