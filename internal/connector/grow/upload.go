package grow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
)

// UploadDir receives uploaded files.
const UploadDir = "/static/uploads"

// maxUploadAttempts bounds the search for a free name.
const maxUploadAttempts = 100

// safeUploadName reduces name to a plain file name of letters, digits, dots,
// dashes and underscores.
func safeUploadName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "", apperr.New(apperr.ErrInvalid, "Invalid file name", name)
	}
	return out, nil
}

// UploadFile stores an uploaded file under UploadDir. An existing file is
// never overwritten; a numeric suffix is added instead.
func (c *Connector) UploadFile(ctx context.Context, req models.UploadFileRequest) (*models.FileData, error) {
	if req.File.Content == nil {
		return nil, apperr.New(apperr.ErrInvalid, "Missing upload content", "")
	}
	name, err := safeUploadName(req.File.Name)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(req.File.Content)
	if err != nil {
		return nil, fmt.Errorf("grow: read upload %s: %w", name, err)
	}

	p, err := c.storeUpload(ctx, name, content)
	if err != nil {
		return nil, err
	}
	c.record(ctx, p, history.ActionUpload, content, req.File.Name)
	return &models.FileData{Path: p, URL: ServingURL(p)}, nil
}

// storeUpload writes content to the first free name derived from name.
// Providers implementing storage.Creator claim the name atomically; others
// fall back to a stat before the write.
func (c *Connector) storeUpload(ctx context.Context, name string, content []byte) (string, error) {
	creator, exclusive := c.store.(storage.Creator)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxUploadAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := path.Join(UploadDir, candidate)

		if exclusive {
			err := creator.CreateFile(ctx, p, content)
			if errors.Is(err, apperr.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("grow: upload %s: %w", p, err)
			}
			return p, nil
		}

		exists, err := c.store.ExistsFile(ctx, p)
		if err != nil {
			return "", fmt.Errorf("grow: stat %s: %w", p, err)
		}
		if exists {
			continue
		}
		if err := c.store.WriteFile(ctx, p, content); err != nil {
			return "", fmt.Errorf("grow: upload %s: %w", p, err)
		}
		return p, nil
	}
	return "", apperr.New(apperr.ErrAlreadyExists, "Too many uploads with this name", name)
}
