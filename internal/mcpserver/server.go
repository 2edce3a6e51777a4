// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the wiki outline and pages to LLM clients via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/summary"
)

const (
	summaryFormatURI   = "craftwiki://summary-format"
	defaultSearchLimit = 20
)

// Server wraps the MCP server with the wiki tools.
type Server struct {
	mcp *server.MCPServer
	svc *summary.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *summary.Service, version string) *Server {
	s := &Server{svc: svc}
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"CraftWiki",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_summary",
		mcp.WithDescription("Return the current SUMMARY.md outline of the wiki: categories as headings, pages as links. "+
			"A second content block carries the checksum to pass as if_match to apply_summary."),
	), s.getSummary)

	s.mcp.AddTool(mcp.NewTool("apply_summary",
		mcp.WithDescription("Apply an edited SUMMARY.md outline. Categories and pages are created, moved, "+
			"reordered or hidden to match the text. Send the complete outline, not a diff. "+
			"Read the format first via get_summary_contract or the "+summaryFormatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full SUMMARY.md text")),
		mcp.WithString("if_match", mcp.Description("Checksum of the outline text the edit is based on")),
	), s.applySummary)

	s.mcp.AddTool(mcp.NewTool("get_summary_contract",
		mcp.WithDescription("Returns the SUMMARY.md format contract. Call this before apply_summary."),
	), s.getSummaryContract)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page by slug: title, Markdown body and checksum."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Page slug as used in the outline (e.g. redstone/basics)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("update_page",
		mcp.WithDescription("Replace the Markdown body of an existing page. Pass the checksum from read_page "+
			"as if_match to avoid overwriting a concurrent edit."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Page slug")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown body")),
		mcp.WithString("if_match", mcp.Description("Checksum of the body being replaced")),
	), s.updatePage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Search visible pages by title and body."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPages)

	s.mcp.AddResource(
		mcp.NewResource(summaryFormatURI, "SUMMARY.md Format Contract",
			mcp.WithResourceDescription("Outline grammar accepted by apply_summary."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSummaryFormatResource,
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

func (s *Server) getSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.svc.PullCurrentOutlineText(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
			mcp.NewTextContent("checksum: " + checksum.Sum([]byte(text))),
		},
	}, nil
}

func (s *Server) applySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is empty; send \"# Summary\" to hide every category"), nil
	}
	res := s.svc.ApplyOutlineTextIfMatch(ctx, content, req.GetString("if_match", ""))
	out, _ := json.MarshalIndent(res, "", "  ")
	if !res.Success {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSummaryContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SummaryFormatContract), nil
}

func (s *Server) readSummaryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      summaryFormatURI,
			MIMEType: "text/markdown",
			Text:     SummaryFormatContract,
		},
	}, nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.GetPage(ctx, slug)
	if err != nil {
		return pageError(slug, err), nil
	}
	out, _ := json.MarshalIndent(page, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) updatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.UpdatePageContent(ctx, slug, content, req.GetString("if_match", ""))
	if err != nil {
		return pageError(slug, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (checksum %s)", page.Slug, page.Checksum)), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchPages(ctx, query, req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func pageError(slug string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("checksum mismatch: %s was changed, read it again", slug))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
