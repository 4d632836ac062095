// Package sandbox is the execution-environment collaborator: tool side
// effects are applied inside a workspace root and come back as structured
// outcomes. Isolation guarantees belong to the environment itself, not here.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Sandbox executes commands and file operations inside one workspace.
// Implementations enforce their own execution timeout and output bound.
type Sandbox interface {
	// ID identifies the sandbox flavor ("local", "remote").
	ID() string

	// Workdir returns the workspace root.
	Workdir() string

	// Execute runs a shell command in the workspace.
	Execute(command string) ExecResult

	// WriteFile writes content to a workspace-relative path.
	WriteFile(path string, content []byte) error

	// ReadFile reads a workspace-relative path.
	ReadFile(path string) ([]byte, error)

	// ListFiles lists entries under a workspace-relative directory.
	ListFiles(path string) ([]string, error)
}

// ExecResult holds the outcome of one command execution.
type ExecResult struct {
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code"`
	Truncated bool   `json:"truncated"`
}

// resolvePath joins a workspace-relative path against the root and rejects
// escapes. An empty path resolves to the root itself.
func resolvePath(root, path string) (string, error) {
	if path == "" {
		return root, nil
	}
	if filepath.IsAbs(path) {
		// Absolute paths are allowed only when already inside the root.
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path %q is outside the workspace", path)
		}
		return filepath.Clean(path), nil
	}
	resolved := filepath.Clean(filepath.Join(root, path))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return resolved, nil
}
