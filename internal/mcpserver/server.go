// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the editor connector as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/workspace"
)

// ContractURI is the resource URI of FrontMatterContract.
const ContractURI = "editor://front-matter"

// Server wraps the MCP server with editor tools.
type Server struct {
	mcp  *server.MCPServer
	conn connector.Connector
}

// New creates a new MCP server with all editor tools registered.
func New(conn connector.Connector, version string) *Server {
	s := &Server{conn: conn}

	s.mcp = server.NewMCPServer(
		"editor-server",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Return the project title read from podspec.yaml."),
	), s.getProject)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the editable files of the project, one path per line."),
		mcp.WithString("prefix", mcp.Description("Optional path prefix, e.g. /content/pages")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a document as the editor sees it: body content, decoded "+
			"front matter, raw front matter and field schema. Read the front matter contract "+
			"first via the get_front_matter_contract tool or the "+ContractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Repository path (e.g. /content/pages/about.md)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("list_partials",
		mcp.WithDescription("List the partial templates of the project and their editor field schemas."),
	), s.listPartials)

	s.mcp.AddTool(mcp.NewTool("expand_workspace",
		mcp.WithDescription("Map a workspace name onto its branch, or a branch onto its workspace."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workspace or branch name")),
	), s.expandWorkspace)

	s.mcp.AddTool(mcp.NewTool("get_front_matter_contract",
		mcp.WithDescription("Returns the front matter format of editable documents."),
	), s.getContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Upload an image or PDF from an http(s) URL or a base64 data URI "+
			"into /static/uploads/. Returns the stored path and its URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data URI")),
		mcp.WithString("filename", mcp.Description("Optional file name (derived from the URL otherwise)")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Front Matter Format",
			mcp.WithResourceDescription("Layout of editable documents and their field schemas."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) getProject(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := s.conn.GetProject(ctx, models.GetProjectRequest{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(project)
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := ""
	if p, err := req.RequireString("prefix"); err == nil {
		prefix = p
	}

	files, err := s.conn.GetFiles(ctx, models.GetFilesRequest{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, f := range files {
		if strings.HasPrefix(f.Path, prefix) {
			paths = append(paths, f.Path)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := s.conn.GetFile(ctx, models.GetFileRequest{File: models.FileData{Path: path}})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(file)
}

func (s *Server) listPartials(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pl, ok := s.conn.(connector.PartialsLister)
	if !ok {
		return mcp.NewToolResultError("the project format has no partials"), nil
	}
	partials, err := pl.GetPartials(ctx, models.GetPartialsRequest{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(partials)
}

type workspaceResult struct {
	Workspace         string `json:"workspace"`
	Branch            string `json:"branch"`
	IsWorkspaceBranch bool   `json:"isWorkspaceBranch"`
}

func (s *Server) expandWorkspace(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	branch := name
	if !workspace.IsWorkspaceBranch(name) {
		branch = workspace.Expand(name)
	}
	return jsonResult(workspaceResult{
		Workspace:         workspace.Shorten(branch),
		Branch:            branch,
		IsWorkspaceBranch: workspace.IsWorkspaceBranch(branch),
	})
}

func (s *Server) getContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FrontMatterContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     FrontMatterContract,
		},
	}, nil
}
