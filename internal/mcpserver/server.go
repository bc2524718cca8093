// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the glossary as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lexicon/internal/termservice"
)

const markupURI = "lexicon://markup"

// Server wraps the MCP server with glossary tools.
type Server struct {
	mcp *server.MCPServer
	svc *termservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *termservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lexicon",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_terms",
		mcp.WithDescription("List the names of all terms in the glossary."),
	), s.listTerms)

	s.mcp.AddTool(mcp.NewTool("read_term",
		mcp.WithDescription("Read a term: its description markup, related terms and attachments."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Term name")),
		mcp.WithString("format", mcp.Description("json (default) or html")),
	), s.readTerm)

	s.mcp.AddTool(mcp.NewTool("search_terms",
		mcp.WithDescription("Full-text search through saved term names and descriptions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTerms)

	s.mcp.AddTool(mcp.NewTool("create_term",
		mcp.WithDescription("Create a new term. The description MUST follow the glossary markup. "+
			"Read the contract first via the get_markup_contract tool or the "+markupURI+" resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Term name")),
		mcp.WithString("description", mcp.Description("Description in glossary markup")),
		mcp.WithString("related", mcp.Description("Comma-separated names of existing terms to link")),
	), s.createTerm)

	s.mcp.AddTool(mcp.NewTool("describe_term",
		mcp.WithDescription("Replace the description of a term."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Term name")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Description in glossary markup")),
	), s.describeTerm)

	s.mcp.AddTool(mcp.NewTool("rename_term",
		mcp.WithDescription("Rename a term. Related terms follow the new name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Current term name")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New term name")),
	), s.renameTerm)

	s.mcp.AddTool(mcp.NewTool("link_terms",
		mcp.WithDescription("Link a term with other terms. Links are always mutual."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Term name")),
		mcp.WithString("terms", mcp.Required(), mcp.Description("Comma-separated names of terms to link")),
	), s.linkTerms)

	s.mcp.AddTool(mcp.NewTool("attach_asset",
		mcp.WithDescription("Download an image or document (http/https URL or base64 data URI) and "+
			"attach it to a term. Images can then be referenced from the description with the "+
			"returned #img tag."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Term name")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name (defaults to one derived from the URL)")),
	), s.attachAsset)

	s.mcp.AddTool(mcp.NewTool("save_project",
		mcp.WithDescription("Write all pending changes to the project directory."),
	), s.saveProject)

	s.mcp.AddTool(mcp.NewTool("get_markup_contract",
		mcp.WithDescription("Returns the glossary description markup contract. "+
			"Call this before creating or describing terms."),
	), s.getMarkupContract)

	s.mcp.AddResource(
		mcp.NewResource(markupURI, "Description Markup Contract",
			mcp.WithResourceDescription("Markup that term descriptions must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMarkupResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) listTerms(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no terms"), nil
	}
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) readTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "json") == "html" {
		page, err := s.svc.HTML(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(page), nil
	}
	d, err := s.svc.Get(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) searchTerms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) createTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Create(ctx, termservice.CreateInput{
		Name:         name,
		Description:  req.GetString("description", ""),
		RelatedTerms: splitNames(req.GetString("related", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) describeTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	desc, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Update(ctx, name, termservice.UpdateInput{Description: &desc})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) renameTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newName, err := req.RequireString("new_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Update(ctx, name, termservice.UpdateInput{Name: &newName}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s -> %s", name, newName)), nil
}

func (s *Server) linkTerms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("terms")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	others := splitNames(raw)
	if len(others) == 0 {
		return mcp.NewToolResultError("terms must name at least one term"), nil
	}
	d, err := s.svc.LinkTerms(ctx, name, others)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s is related to: %s", d.Name, strings.Join(d.RelatedTerms, ", "))), nil
}

func (s *Server) saveProject(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.svc.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) getMarkupContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkupContract), nil
}

func (s *Server) readMarkupResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      markupURI,
			MIMEType: "text/markdown",
			Text:     MarkupContract,
		},
	}, nil
}
