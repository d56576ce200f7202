package workspace

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
)

// Service answers workspace requests from a fixed set of branches. It has no
// version control behind it, so creating and publishing are unsupported.
type Service struct {
	current  string
	branches []string
}

// NewService builds a service for the checked-out branch current and the
// other known branches. current is always part of the known set.
func NewService(current string, branches []string) *Service {
	current = strings.TrimSpace(current)
	if current == "" {
		current = "main"
	}
	seen := map[string]bool{current: true}
	all := []string{current}
	for _, b := range branches {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		all = append(all, b)
	}
	return &Service{current: current, branches: all}
}

func toData(branch string) models.WorkspaceData {
	return models.WorkspaceData{
		Name:   Shorten(branch),
		Branch: models.BranchData{Name: branch},
	}
}

// Current returns the workspace of the checked-out branch.
func (s *Service) Current(_ context.Context) (*models.WorkspaceData, error) {
	ws := toData(s.current)
	return &ws, nil
}

// List returns every known workspace branch. Other branches are skipped.
func (s *Service) List(_ context.Context) ([]models.WorkspaceData, error) {
	out := make([]models.WorkspaceData, 0, len(s.branches))
	for _, b := range s.branches {
		if IsWorkspaceBranch(b) {
			out = append(out, toData(b))
		}
	}
	return out, nil
}

// Get returns the workspace called name.
func (s *Service) Get(_ context.Context, name string) (*models.WorkspaceData, error) {
	branch := Expand(name)
	if !slices.Contains(s.branches, branch) {
		return nil, fmt.Errorf("workspace: get %s: %w", name, apperr.ErrNotFound)
	}
	ws := toData(branch)
	return &ws, nil
}

// Create would branch workspace off base.
func (s *Service) Create(_ context.Context, req models.CreateWorkspaceRequest) (*models.WorkspaceData, error) {
	return nil, apperr.New(apperr.ErrUnsupported,
		"Workspace creation is not supported",
		fmt.Sprintf("cannot create %s from %s without version control", Expand(req.Workspace), req.Base.Branch.Name))
}

// Publish would merge the workspace into its target branch.
func (s *Service) Publish(_ context.Context, req models.PublishRequest) (*models.PublishResult, error) {
	return nil, apperr.New(apperr.ErrUnsupported,
		"Publishing is not supported",
		fmt.Sprintf("cannot publish %s without version control", Expand(req.Workspace.Name)))
}
