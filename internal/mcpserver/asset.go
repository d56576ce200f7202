package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/editor-server/internal/models"
)

const (
	maxAssetSize      = 10 << 20 // 10 MB
	maxAssetRedirects = 5
)

var (
	assetExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}
)

// asset is a downloaded or decoded file ready to be uploaded.
type asset struct {
	data []byte
	ext  string
}

type uploadResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := ""
	if v, fErr := req.RequireString("filename"); fErr == nil {
		filename = v
	}

	var a asset
	if strings.HasPrefix(rawURL, "data:") {
		a, err = decodeDataURI(rawURL)
	} else {
		a, err = fetchAsset(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(a.data) > maxAssetSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(a.data), maxAssetSize)), nil
	}

	if filename == "" {
		filename = assetName(rawURL, a.ext)
	}
	ext := strings.ToLower(path.Ext(filename))
	if !assetExtensions[ext] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension: %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext)), nil
	}
	if err := checkContent(a.data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	file, err := s.conn.UploadFile(ctx, models.UploadFileRequest{
		File: models.UploadedFile{
			Name:    filename,
			Size:    int64(len(a.data)),
			Content: bytes.NewReader(a.data),
		},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(uploadResult{Path: file.Path, URL: file.URL})
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) (asset, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return asset{}, fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return asset{}, fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return asset{}, fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime, _, _ := strings.Cut(meta, ";")
	ext := mimeToExt[mime]
	if ext == "" {
		return asset{}, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return asset{data: data, ext: ext}, nil
}

// fetchAsset downloads an http(s) URL, refusing loopback and metadata hosts
// on every hop.
func fetchAsset(ctx context.Context, rawURL string) (asset, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return asset{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return asset{}, fmt.Errorf("unsupported scheme: %q (only http/https)", parsed.Scheme)
	}
	if err := checkHost(ctx, parsed.Hostname()); err != nil {
		return asset{}, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{
		Timeout: 10 * time.Second,
		Control: dialPublic,
	}).DialContext
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxAssetRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxAssetRedirects)
			}
			return checkHost(req.Context(), req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return asset{}, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return asset{}, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return asset{}, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return asset{}, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxAssetSize {
		return asset{}, fmt.Errorf("file too large: exceeds %d bytes", maxAssetSize)
	}

	ct, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return asset{data: data, ext: mimeToExt[strings.TrimSpace(ct)]}, nil
}

// checkHost rejects hosts that name or resolve to an internal address. Every
// resolved address must be public.
func checkHost(ctx context.Context, host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(host, ip)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil //nolint:nilerr // the client reports DNS failures
	}
	for _, addr := range addrs {
		if err := checkIP(host, addr.IP); err != nil {
			return err
		}
	}
	return nil
}

// checkIP rejects loopback, private, link-local and unspecified addresses,
// which covers the 169.254.169.254 metadata endpoint.
func checkIP(host string, ip net.IP) error {
	switch {
	case ip.IsLoopback(), ip.IsUnspecified():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.IsPrivate():
		return fmt.Errorf("blocked host: private address %s", host)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(), ip.IsInterfaceLocalMulticast():
		return fmt.Errorf("blocked host: link-local address %s", host)
	}
	return nil
}

// dialPublic refuses connections to internal addresses at dial time, so a
// name that resolves differently after checkHost is still caught.
func dialPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("blocked host: unresolved address %s", address)
	}
	return checkIP(host, ip)
}

// assetName takes the last URL path segment when it looks like a file name
// and falls back to a random one.
func assetName(rawURL, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.NewString() + ext
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.NewString() + ext
}

// checkContent verifies that data matches the declared extension.
func checkContent(data []byte, ext string) error {
	if ext == ".svg" {
		head := data[:min(len(data), 1024)]
		if !bytes.Contains(head, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	}

	detected := http.DetectContentType(data)
	mime, _, _ := strings.Cut(detected, ";")
	got := mimeToExt[mime]
	want := ext
	if want == ".jpeg" {
		want = ".jpg"
	}
	if got != want {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
