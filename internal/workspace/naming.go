// Package workspace maps editor workspaces onto repository branches.
package workspace

import "strings"

// Prefix marks branches that belong to an editor workspace.
const Prefix = "workspace/"

var reserved = map[string]struct{}{
	"main":    {},
	"master":  {},
	"staging": {},
}

// ReservedBranches returns the branch names that are never prefixed.
func ReservedBranches() []string {
	return []string{"main", "master", "staging"}
}

// IsReserved reports whether name is a reserved branch. Matching is case-sensitive.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// Expand returns the branch backing workspace.
func Expand(workspace string) string {
	if IsReserved(workspace) {
		return workspace
	}
	return Prefix + workspace
}

// IsWorkspaceBranch reports whether branch is reserved or carries Prefix.
func IsWorkspaceBranch(branch string) bool {
	return IsReserved(branch) || strings.HasPrefix(branch, Prefix)
}

// Shorten returns the workspace name of branch.
func Shorten(branch string) string {
	return strings.TrimPrefix(branch, Prefix)
}
