package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/editor-server/internal/connector"
	"github.com/starford/editor-server/internal/connector/grow"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testServer(t *testing.T) (*Server, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory(map[string]string{
		"/podspec.yaml":             "title: Docs\n",
		"/content/pages/about.md":   "---\ntitle: About\n---\nHello\n",
		"/content/pages/index.yaml": "title: Home\n",
		"/static/css/main.css":      "body{}",
		"/views/partials/hero.html": "---\neditor:\n  fields:\n    - key: title\n---\n<h1></h1>\n",
	})
	return New(grow.New(connector.Env{Store: store}), "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "get_project":
		result, err = srv.getProject(ctx, req)
	case "list_files":
		result, err = srv.listFiles(ctx, req)
	case "read_file":
		result, err = srv.readFile(ctx, req)
	case "list_partials":
		result, err = srv.listPartials(ctx, req)
	case "expand_workspace":
		result, err = srv.expandWorkspace(ctx, req)
	case "get_front_matter_contract":
		result, err = srv.getContract(ctx, req)
	case "upload_asset":
		result, err = srv.uploadAsset(ctx, req)
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

func TestGetProject(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_project", nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"title": "Docs"`) {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestListFiles(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_files", nil)
	text := resultText(r)
	for _, want := range []string{"/content/pages/about.md", "/static/css/main.css"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing misses %s:\n%s", want, text)
		}
	}
	if strings.Contains(text, "/views/") {
		t.Errorf("listing should be filtered:\n%s", text)
	}

	r = callTool(t, srv, "list_files", map[string]any{"prefix": "/static"})
	if resultText(r) != "/static/css/main.css" {
		t.Errorf("prefixed listing = %q", resultText(r))
	}

	r = callTool(t, srv, "list_files", map[string]any{"prefix": "/nope"})
	if resultText(r) != "no files found" {
		t.Errorf("empty listing = %q", resultText(r))
	}
}

func TestReadFile(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_file", map[string]any{"path": "/content/pages/about.md"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var got models.EditorFileData
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Content != "Hello\n" {
		t.Errorf("content = %q", got.Content)
	}
	if got.File.Path != "/content/pages/about.md" {
		t.Errorf("path = %q", got.File.Path)
	}
}

func TestReadFile_Errors(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "read_file", nil); !r.IsError {
		t.Error("missing path should fail")
	}
	if r := callTool(t, srv, "read_file", map[string]any{"path": "/content/missing.md"}); !r.IsError {
		t.Error("unknown file should fail")
	}
}

func TestListPartials(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_partials", nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"hero"`) {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestExpandWorkspace(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		name, workspace, branch string
		isWorkspace             bool
	}{
		{"feature", "feature", "workspace/feature", true},
		{"workspace/feature", "feature", "workspace/feature", true},
		{"main", "main", "main", true},
	}
	for _, tt := range tests {
		r := callTool(t, srv, "expand_workspace", map[string]any{"name": tt.name})
		var got workspaceResult
		if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		want := workspaceResult{Workspace: tt.workspace, Branch: tt.branch, IsWorkspaceBranch: tt.isWorkspace}
		if got != want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, want)
		}
	}
}

func TestGetContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_front_matter_contract", nil)
	if !strings.Contains(resultText(r), "_blueprint.yaml") {
		t.Error("contract should describe blueprints")
	}

	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc := contents[0].(mcp.TextResourceContents); tc.URI != ContractURI {
		t.Errorf("uri = %q", tc.URI)
	}
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestUploadAsset_DataURI(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "upload_asset", map[string]any{
		"url":      dataURI("image/png", pngHeader),
		"filename": "logo.png",
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var got uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Path != "/static/uploads/logo.png" || got.URL != got.Path {
		t.Errorf("result = %+v", got)
	}
	if ok, _ := store.ExistsFile(context.Background(), got.Path); !ok {
		t.Error("asset was not stored")
	}
}

func TestUploadAsset_GeneratedName(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "upload_asset", map[string]any{"url": dataURI("image/png", pngHeader)})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var got uploadResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(got.Path, "/static/uploads/") || !strings.HasSuffix(got.Path, ".png") {
		t.Errorf("path = %q", got.Path)
	}
}

func TestUploadAsset_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing url", nil},
		{"bad extension", map[string]any{"url": dataURI("image/png", pngHeader), "filename": "run.sh"}},
		{"content mismatch", map[string]any{"url": dataURI("image/png", []byte("plain text")), "filename": "x.png"}},
		{"not base64", map[string]any{"url": "data:image/png,abc"}},
		{"unknown mime", map[string]any{"url": dataURI("text/plain", []byte("x"))}},
		{"bad scheme", map[string]any{"url": "ftp://example.com/a.png"}},
		{"loopback", map[string]any{"url": "http://127.0.0.1/a.png"}},
		{"metadata", map[string]any{"url": "http://169.254.169.254/latest"}},
		{"private", map[string]any{"url": "http://10.0.0.1/a.png"}},
	}
	for _, tt := range tests {
		if r := callTool(t, srv, "upload_asset", tt.args); !r.IsError {
			t.Errorf("%s: expected error, got %s", tt.name, resultText(r))
		}
	}
}

func TestCheckHost(t *testing.T) {
	tests := []struct {
		host    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"0.0.0.0", true},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"fd00::1", true},
		{"169.254.169.254", true},
		{"169.254.1.1", true},
		{"fe80::1", true},
		{"metadata.google.internal", true},
		{"93.184.216.34", false},
		{"2606:2800:220:1:248:1893:25c8:1946", false},
	}
	for _, tt := range tests {
		err := checkHost(context.Background(), tt.host)
		if (err != nil) != tt.blocked {
			t.Errorf("checkHost(%q) = %v, blocked want %v", tt.host, err, tt.blocked)
		}
	}
}

func TestDialPublic(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "10.1.2.3:443", "[fe80::1]:80", "example.com:80"} {
		if err := dialPublic("tcp", addr, nil); err == nil {
			t.Errorf("dialPublic(%q) allowed", addr)
		}
	}
	if err := dialPublic("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public address refused: %v", err)
	}
}

func TestCheckContent_SVG(t *testing.T) {
	if err := checkContent([]byte(`<?xml version="1.0"?><svg xmlns="x"></svg>`), ".svg"); err != nil {
		t.Errorf("valid svg rejected: %v", err)
	}
	if err := checkContent([]byte("<html></html>"), ".svg"); err == nil {
		t.Error("html accepted as svg")
	}
}

func TestAssetName(t *testing.T) {
	if got := assetName("https://cdn.example.com/img/photo.jpg?w=100", ".png"); got != "photo.jpg" {
		t.Errorf("assetName = %q", got)
	}
	if got := assetName("https://cdn.example.com/img/", ".png"); !strings.HasSuffix(got, ".png") || len(got) != 36+4 {
		t.Errorf("fallback name = %q", got)
	}
}
