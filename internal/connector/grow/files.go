package grow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/frontmatter"
	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
	"github.com/starford/editor-server/internal/yamlschema"
)

const (
	blueprintFile = "_blueprint.yaml"
	editorKey     = "editor"
	docEditorKey  = "$editor"
)

func isYAML(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// filePath validates a path coming from the editor.
func filePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", apperr.New(apperr.ErrInvalid, "File path is required", "")
	}
	clean := storage.Clean(p)
	if clean == "/" {
		return "", apperr.New(apperr.ErrInvalid, "Invalid file path", p)
	}
	return clean, nil
}

// GetFile reads a document and splits it into content, metadata and the
// editor field schema.
func (c *Connector) GetFile(ctx context.Context, req models.GetFileRequest) (*models.EditorFileData, error) {
	p, err := filePath(req.File.Path)
	if err != nil {
		return nil, err
	}
	raw, err := c.store.ReadFile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("grow: get %s: %w", p, err)
	}
	return c.buildFile(ctx, p, raw)
}

func (c *Connector) buildFile(ctx context.Context, p string, raw []byte) (*models.EditorFileData, error) {
	var content, dataRaw string
	if isYAML(p) {
		dataRaw = string(raw)
	} else {
		parts := frontmatter.Split(raw)
		content, dataRaw = parts.Body, parts.FrontMatter
	}

	data, err := c.schema.Decode(ctx, dataRaw)
	if err != nil {
		return nil, fmt.Errorf("grow: decode %s: %w", p, err)
	}

	editor, err := c.editorFor(ctx, p, data)
	if err != nil {
		return nil, err
	}

	url := ServingURL(p)
	file := &models.EditorFileData{
		Content: content,
		Data:    data,
		DataRaw: dataRaw,
		File:    models.FileData{Path: p, URL: url},
		Editor:  editor,
		URL:     url,
	}
	if url != "" {
		file.URLs = []models.URLConfig{{URL: url, Label: "Preview", Level: "private"}}
	}

	entries, err := c.history.ForFile(ctx, p, c.historyLimit)
	if err != nil {
		c.log.Warn("history unavailable", slog.String("path", p), slog.String("error", err.Error()))
	}
	for _, e := range entries {
		file.History = append(file.History, e.Change())
	}
	return file, nil
}

// editorFor resolves the field schema of a document: the editor key of the
// nearest collection blueprint, else the document's own $editor key.
func (c *Connector) editorFor(ctx context.Context, p string, data *orderedmap.OrderedMap[string, any]) (any, error) {
	if strings.HasPrefix(p, contentDir+"/") {
		for dir := path.Dir(p); strings.HasPrefix(dir, contentDir); dir = path.Dir(dir) {
			bp := path.Join(dir, blueprintFile)
			if bp == p {
				continue
			}
			ok, err := c.store.ExistsFile(ctx, bp)
			if err != nil {
				return nil, fmt.Errorf("grow: stat %s: %w", bp, err)
			}
			if !ok {
				continue
			}
			raw, err := c.store.ReadFile(ctx, bp)
			if err != nil {
				return nil, fmt.Errorf("grow: read %s: %w", bp, err)
			}
			blueprint, err := c.schema.Decode(ctx, string(raw))
			if err != nil {
				return nil, fmt.Errorf("grow: decode %s: %w", bp, err)
			}
			if editor, ok := blueprint.Get(editorKey); ok {
				return editor, nil
			}
			break
		}
	}
	if editor, ok := data.Get(docEditorKey); ok {
		return editor, nil
	}
	return nil, nil
}

// SaveFile writes an edited document. Raw edits keep the front matter text
// as typed; structured edits re-encode the data.
func (c *Connector) SaveFile(ctx context.Context, req models.SaveFileRequest) (*models.EditorFileData, error) {
	p, err := filePath(req.File.File.Path)
	if err != nil {
		return nil, err
	}

	var meta string
	summary := "structured edit"
	if req.IsRawEdit {
		summary = "raw edit"
		meta = req.File.DataRaw
		if _, err := c.schema.Decode(ctx, meta); err != nil {
			return nil, apperr.New(apperr.ErrInvalid, "Invalid front matter", err.Error())
		}
	} else {
		meta, err = encodeData(req.File.Data)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalid, "Invalid data", err.Error())
		}
	}

	var out []byte
	if isYAML(p) {
		out = []byte(meta)
	} else {
		out = frontmatter.Join(meta, req.File.Content)
	}

	if err := c.store.WriteFile(ctx, p, out); err != nil {
		return nil, fmt.Errorf("grow: save %s: %w", p, err)
	}
	c.record(ctx, p, history.ActionSave, out, summary)
	return c.buildFile(ctx, p, out)
}

// encodeData serialises structured data as YAML. Empty data encodes to "".
func encodeData(data any) (string, error) {
	switch d := data.(type) {
	case nil:
		return "", nil
	case *orderedmap.OrderedMap[string, any]:
		if d == nil || d.Len() == 0 {
			return "", nil
		}
	case map[string]any:
		if len(d) == 0 {
			return "", nil
		}
	default:
		return "", fmt.Errorf("data must be an object, got %T", data)
	}
	out, err := yamlschema.Encode(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// GetFiles lists the editable files of the project.
func (c *Connector) GetFiles(ctx context.Context, _ models.GetFilesRequest) ([]models.FileData, error) {
	all, err := storage.Walk(ctx, c.store, "/")
	if err != nil {
		return nil, fmt.Errorf("grow: list files: %w", err)
	}
	storage.SortByPath(all)
	out := make([]models.FileData, 0, len(all))
	for _, f := range all {
		if !c.filter.Matches(f.Path) {
			continue
		}
		out = append(out, models.FileData{Path: f.Path, URL: ServingURL(f.Path)})
	}
	return out, nil
}

// CopyFile duplicates originalPath at path.
func (c *Connector) CopyFile(ctx context.Context, req models.CopyFileRequest) (*models.FileData, error) {
	src, err := filePath(req.OriginalPath)
	if err != nil {
		return nil, err
	}
	dst, err := filePath(req.Path)
	if err != nil {
		return nil, err
	}
	raw, err := c.store.ReadFile(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("grow: copy %s: %w", src, err)
	}
	if err := c.ensureAbsent(ctx, dst); err != nil {
		return nil, err
	}
	if err := c.store.WriteFile(ctx, dst, raw); err != nil {
		return nil, fmt.Errorf("grow: copy %s: %w", dst, err)
	}
	c.record(ctx, dst, history.ActionCopy, raw, "copied from "+src)
	return &models.FileData{Path: dst, URL: ServingURL(dst)}, nil
}

// CreateFile creates a new file, empty unless content is given.
func (c *Connector) CreateFile(ctx context.Context, req models.CreateFileRequest) (*models.FileData, error) {
	p, err := filePath(req.Path)
	if err != nil {
		return nil, err
	}
	if err := c.ensureAbsent(ctx, p); err != nil {
		return nil, err
	}
	content := []byte{}
	if req.Content != nil {
		content = []byte(*req.Content)
	}
	if err := c.store.WriteFile(ctx, p, content); err != nil {
		return nil, fmt.Errorf("grow: create %s: %w", p, err)
	}
	c.record(ctx, p, history.ActionCreate, content, "")
	return &models.FileData{Path: p, URL: ServingURL(p)}, nil
}

// DeleteFile removes a file.
func (c *Connector) DeleteFile(ctx context.Context, req models.DeleteFileRequest) error {
	p, err := filePath(req.File.Path)
	if err != nil {
		return err
	}
	if err := c.store.DeleteFile(ctx, p); err != nil {
		return fmt.Errorf("grow: delete %s: %w", p, err)
	}
	c.record(ctx, p, history.ActionDelete, nil, "")
	return nil
}

func (c *Connector) ensureAbsent(ctx context.Context, p string) error {
	exists, err := c.store.ExistsFile(ctx, p)
	if err != nil {
		return fmt.Errorf("grow: stat %s: %w", p, err)
	}
	if exists {
		return apperr.New(apperr.ErrAlreadyExists, "File already exists", p)
	}
	return nil
}

// record logs a change. History is auxiliary: failures are logged, not returned.
func (c *Connector) record(ctx context.Context, p, action string, content []byte, summary string) {
	entry := history.Entry{Path: p, Action: action, Summary: summary}
	if content != nil {
		entry.Checksum = history.Checksum(content)
	}
	if err := c.history.Record(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("history record failed",
			slog.String("path", p),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
	c.log.Info("file changed", slog.String("path", p), slog.String("action", action))
}
