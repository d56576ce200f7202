// Package connector declares the contract between the editor API and a
// content-repository format, and selects the implementation for a repository.
package connector

import (
	"context"
	"fmt"
	"log/slog"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/history"
	"github.com/starford/editor-server/internal/models"
	"github.com/starford/editor-server/internal/storage"
)

// Connector translates editor requests into operations on one repository
// format. Implementations keep no per-request state; storage is the only
// state they carry.
type Connector interface {
	GetFile(ctx context.Context, req models.GetFileRequest) (*models.EditorFileData, error)
	SaveFile(ctx context.Context, req models.SaveFileRequest) (*models.EditorFileData, error)
	GetProject(ctx context.Context, req models.GetProjectRequest) (*models.ProjectData, error)
	UploadFile(ctx context.Context, req models.UploadFileRequest) (*models.FileData, error)
	GetFiles(ctx context.Context, req models.GetFilesRequest) ([]models.FileData, error)
	CopyFile(ctx context.Context, req models.CopyFileRequest) (*models.FileData, error)
	CreateFile(ctx context.Context, req models.CreateFileRequest) (*models.FileData, error)
	DeleteFile(ctx context.Context, req models.DeleteFileRequest) error
}

// PartialsLister is implemented by connectors whose format has reusable
// partial templates.
type PartialsLister interface {
	GetPartials(ctx context.Context, req models.GetPartialsRequest) (*orderedmap.OrderedMap[string, models.GrowPartialData], error)
}

// Env is what a connector is built from.
type Env struct {
	Store   storage.Provider
	History history.Recorder
	Logger  *slog.Logger
}

// Factory describes one connector implementation.
type Factory struct {
	Name string
	// CanApply is a cheap check, typically the existence of a marker file.
	CanApply func(ctx context.Context, store storage.Provider) (bool, error)
	New      func(env Env) Connector
}

// Select tries factories in order and builds the first one that applies.
// It returns the connector and the name of its factory.
func Select(ctx context.Context, env Env, factories ...Factory) (Connector, string, error) {
	if env.History == nil {
		env.History = history.Nop{}
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	for _, f := range factories {
		ok, err := f.CanApply(ctx, env.Store)
		if err != nil {
			return nil, "", fmt.Errorf("connector: check %s: %w", f.Name, err)
		}
		if ok {
			env.Logger.Info("connector selected", slog.String("connector", f.Name))
			return f.New(env), f.Name, nil
		}
	}
	return nil, "", fmt.Errorf("connector: %w", apperr.ErrNoConnector)
}
