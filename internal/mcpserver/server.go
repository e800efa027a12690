// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Sidekick search tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sidekick/internal/logseq"
)

// Server wraps the MCP server with Sidekick tools.
type Server struct {
	mcp *server.MCPServer
	svc *logseq.Service
}

// New creates a new MCP server with all Sidekick tools registered.
func New(svc *logseq.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Sidekick",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through the connected Logseq graph. "+
			"Returns matching blocks and pages with the graph they belong to."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("url_search",
		mcp.WithDescription("Find blocks referencing a page URL. The exact pass matches "+
			"host+path; enable fuzzy to also include host-only matches."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL to look up")),
		mcp.WithBoolean("fuzzy", mcp.Description("Widen the search to host-only matches")),
	), s.urlSearch)

	s.mcp.AddTool(mcp.NewTool("get_block",
		mcp.WithDescription("Fetch a single block by UUID, rendered for display."),
		mcp.WithString("uuid", mcp.Required(), mcp.Description("Block UUID")),
	), s.getBlock)

	s.mcp.AddTool(mcp.NewTool("graph_info",
		mcp.WithDescription("Describe the connected graph: name, storage path, and "+
			"whether it is a DB graph (task state in structured properties)."),
	), s.graphInfo)

	s.mcp.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the graph names known to the note-store server."),
	), s.listGraphs)

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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.svc.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) urlSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid url: %s", rawURL)), nil
	}
	fuzzy := req.GetBool("fuzzy", false)

	result, err := s.svc.URLSearch(ctx, u, logseq.URLSearchOptions{Fuzzy: fuzzy})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) graphInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.svc.GraphInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(info, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listGraphs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.ListGraphs(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(names, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uuid, err := req.RequireString("uuid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	graph, err := s.svc.GraphName(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	block, err := s.svc.GetBlock(ctx, uuid, graph, "", false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", uuid)), nil
	}
	out, _ := json.MarshalIndent(block, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
