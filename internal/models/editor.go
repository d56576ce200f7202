// Package models defines the editor-facing request and response types.
package models

import "time"

// FileInfo describes a file returned by storage listings.
type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// FileData identifies a file in the editor.
type FileData struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// URLConfig is one of the preview/serving URLs of a file.
type URLConfig struct {
	URL   string `json:"url"`
	Label string `json:"label"`
	Level string `json:"level"` // "private", "protected", "public" or "source"
}

// ChangeData is a single history entry of a file.
type ChangeData struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Summary   string    `json:"summary,omitempty"`
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
}

// EditorFileData is the canonical response for file reads and saves.
//
// Data holds the decoded metadata (a key-ordered map when produced by a
// connector) and Editor the field schema consumed by the front end.
type EditorFileData struct {
	Content string       `json:"content"`
	Data    any          `json:"data"`
	DataRaw string       `json:"dataRaw"`
	File    FileData     `json:"file"`
	Editor  any          `json:"editor,omitempty"`
	History []ChangeData `json:"history,omitempty"`
	URL     string       `json:"url,omitempty"`
	URLs    []URLConfig  `json:"urls,omitempty"`
}

// ProjectData is decoded from the project configuration file.
type ProjectData struct {
	Title string `json:"title"`
}

// DeviceData is a preview device offered by the editor.
type DeviceData struct {
	Label     string `json:"label" yaml:"label"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height,omitempty" yaml:"height"`
	CanRotate bool   `json:"canRotate,omitempty" yaml:"can_rotate"`
}

// BranchData describes the branch behind a workspace.
type BranchData struct {
	Name      string     `json:"name"`
	Commit    string     `json:"commit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// WorkspaceData is an editor workspace (short name plus branch).
type WorkspaceData struct {
	Name   string     `json:"name"`
	Branch BranchData `json:"branch"`
}

// PublishResult is returned by publish requests.
type PublishResult struct {
	Status    string         `json:"status"`
	Workspace *WorkspaceData `json:"workspace,omitempty"`
}

// GrowPartialData describes a Grow partial template and its editor schema.
type GrowPartialData struct {
	Partial string `json:"partial"`
	Editor  any    `json:"editor,omitempty"`
}

// EmptyData is the response of operations without a payload.
type EmptyData struct{}
