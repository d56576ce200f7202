package models

import "io"

// CopyFileRequest copies originalPath to path.
type CopyFileRequest struct {
	OriginalPath string `json:"originalPath"`
	Path         string `json:"path"`
}

// CreateFileRequest creates a new file, optionally with content.
type CreateFileRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

// CreateWorkspaceRequest branches a new workspace off base.
type CreateWorkspaceRequest struct {
	Base      WorkspaceData `json:"base"`
	Workspace string        `json:"workspace"`
}

// DeleteFileRequest removes a file.
type DeleteFileRequest struct {
	File FileData `json:"file"`
}

// GetFileRequest reads a file.
type GetFileRequest struct {
	File FileData `json:"file"`
}

// SaveFileRequest writes a file. When IsRawEdit is set the raw front matter
// (DataRaw) is written verbatim instead of re-encoding Data.
type SaveFileRequest struct {
	File      EditorFileData `json:"file"`
	IsRawEdit bool           `json:"isRawEdit"`
}

// UploadFileRequest carries an uploaded file and its form metadata.
type UploadFileRequest struct {
	File UploadedFile   `json:"file"`
	Meta map[string]any `json:"meta"`
}

// UploadedFile is the file part of an upload.
type UploadedFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Content io.Reader `json:"-"`
}

// PublishRequest publishes a workspace.
type PublishRequest struct {
	Workspace WorkspaceData  `json:"workspace"`
	Data      map[string]any `json:"data,omitempty"`
}

type (
	GetDevicesRequest    struct{}
	GetFilesRequest      struct{}
	GetProjectRequest    struct{}
	GetWorkspaceRequest  struct{}
	GetWorkspacesRequest struct{}
	GetPartialsRequest   struct{}
)
