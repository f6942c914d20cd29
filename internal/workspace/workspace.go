// Package workspace tracks the projects a server manages: standard
// workspaces for configured project roots and standalone workspaces for
// open files no project claims.
package workspace

import (
	"context"
	"path/filepath"

	"quill/internal/build"
	"quill/internal/diag"
	"quill/internal/project"
)

// Workspace is one managed project.
type Workspace struct {
	// Path is the project root, or the file of a standalone workspace.
	Path       string
	Standalone bool
	Builder    *build.Builder
}

// ConfigPath is the manifest the workspace was configured from, or the
// manifest it would use when none was loaded.
func (w *Workspace) ConfigPath() string {
	if cfg := w.Builder.Config(); cfg != nil && cfg.Path != "" {
		return cfg.Path
	}
	if w.Standalone {
		return ""
	}
	return filepath.Join(w.Path, project.ManifestName)
}

// WaitFirstRun blocks until the workspace's first build finished.
func (w *Workspace) WaitFirstRun(ctx context.Context) error {
	return w.Builder.WaitFirstRun(ctx)
}

// FirstRunSucceeded reports whether the first build finished cleanly.
func (w *Workspace) FirstRunSucceeded() bool {
	return w.Builder.FirstRunSucceeded()
}

// Diagnostics returns the workspace's filtered diagnostics.
func (w *Workspace) Diagnostics() []diag.Diagnostic {
	return w.Builder.Diagnostics()
}

// Status returns the build status.
func (w *Workspace) Status() build.Status {
	return w.Builder.Status()
}
