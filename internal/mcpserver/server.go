// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes canvas tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/interaction"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Server wraps the MCP server with canvas tools.
type Server struct {
	mcp      *server.MCPServer
	sessions *editor.Manager
	docs     *documents.Store
	reg      *blocks.Registry
}

func withKey(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("stage", mcp.Required(), mcp.Description("Stage id")),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document id")),
	}, opts...)
}

// New creates a new MCP server with all canvas tools registered.
func New(sessions *editor.Manager, docs *documents.Store) *Server {
	s := &Server{sessions: sessions, docs: docs, reg: docs.Registry()}

	s.mcp = server.NewMCPServer(
		"UCD Canvas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_block_templates",
		mcp.WithDescription("List the block types that can be placed on a canvas, with their fields and defaults."),
	), s.listBlockTemplates)

	s.mcp.AddTool(mcp.NewTool("get_document", withKey(
		mcp.WithDescription("Read a requirements document: its blocks, connections, viewport and save state. "+
			"A document that was never saved is returned empty."),
	)...), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("add_block", withKey(
		mcp.WithDescription("Add a block to a document. Without x and y the block is placed at the default position."),
		mcp.WithString("block_type", mcp.Required(), mcp.Description("Block type, e.g. USER_STORY. See list_block_templates.")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
	)...), s.addBlock)

	s.mcp.AddTool(mcp.NewTool("update_block", withKey(
		mcp.WithDescription("Edit fields of a block. content is a JSON object of field keys to new values; "+
			"read the "+BlockSchemaURI+" resource for the allowed keys."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Block id")),
		mcp.WithString("content", mcp.Required(), mcp.Description(`JSON object, e.g. {"priority":"high"}`)),
	)...), s.updateBlock)

	s.mcp.AddTool(mcp.NewTool("connect_blocks", withKey(
		mcp.WithDescription("Connect the output of one block to the input of another."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source block id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target block id")),
	)...), s.connectBlocks)

	s.mcp.AddTool(mcp.NewTool("remove_block", withKey(
		mcp.WithDescription("Remove a block and every connection touching it."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Block id")),
	)...), s.removeBlock)

	s.mcp.AddTool(mcp.NewTool("save_document", withKey(
		mcp.WithDescription("Persist the document. Edits made by the other tools are not stored until this is called."),
	)...), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("search_blocks",
		mcp.WithDescription("Full-text search through the text of saved blocks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchBlocks)

	// Resource: block field schema.
	s.mcp.AddResource(
		mcp.NewResource(BlockSchemaURI, "Block Schema",
			mcp.WithResourceDescription("Field schema of every block type and the rules for editing documents."),
			mcp.WithMIMEType("application/json"),
		),
		s.readBlockSchemaResource,
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

func keyFrom(req mcp.CallToolRequest) (storage.Key, error) {
	var k storage.Key
	var err error
	if k.ProjectID, err = req.RequireString("project"); err != nil {
		return k, err
	}
	if k.StageID, err = req.RequireString("stage"); err != nil {
		return k, err
	}
	if k.DocumentID, err = req.RequireString("document"); err != nil {
		return k, err
	}
	return k, nil
}

func (s *Server) open(ctx context.Context, req mcp.CallToolRequest) (*editor.Session, error) {
	k, err := keyFrom(req)
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ctx, k)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listBlockTemplates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := BlockSchema(s.reg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"key":      sess.Key(),
		"snapshot": sess.Snapshot(),
		"status":   sess.Status(),
	}), nil
}

func (s *Server) addBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bt, err := req.RequireString("block_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	_, hasX := args["x"]
	_, hasY := args["y"]

	var node canvas.Node
	err = sess.Do("add", func(c *interaction.Controller) error {
		var e error
		if hasX || hasY {
			pos := canvas.Point{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)}
			node, e = c.Document().AddNode(blocks.Type(bt), pos)
		} else {
			node, e = c.QuickAdd(blocks.Type(bt))
		}
		return e
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(node), nil
}

func (s *Server) updateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var patch blocks.Content
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("content must be a JSON object: %v", err)), nil
	}

	var node canvas.Node
	err = sess.Do("edit", func(c *interaction.Controller) error {
		var e error
		node, e = c.Document().UpdateNodeContent(id, patch)
		return e
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(node), nil
}

func (s *Server) connectBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var edge canvas.Edge
	err = sess.Do("connect", func(c *interaction.Controller) error {
		var e error
		edge, e = c.Document().Connect(src, dst)
		return e
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(edge), nil
}

func (s *Server) removeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = sess.Do("delete", func(c *interaction.Controller) error {
		_, e := c.Click(interaction.Target{Region: interaction.RegionNodeDelete, NodeID: id})
		return e
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", id)), nil
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.Save(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", sess.Key())), nil
}

func (s *Server) searchBlocks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.docs.Search(query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readBlockSchemaResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := BlockSchema(s.reg)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockSchemaURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
