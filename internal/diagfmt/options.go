// Package diagfmt renders diagnostics for terminals and tools.
package diagfmt

import (
	"path/filepath"
	"strings"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto shows paths under BaseDir relative to it and others as is.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// ParsePathMode maps a flag value to a PathMode; unknown values are Auto.
func ParsePathMode(s string) PathMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "abs":
		return PathModeAbsolute
	case "relative", "rel":
		return PathModeRelative
	case "basename", "base":
		return PathModeBasename
	default:
		return PathModeAuto
	}
}

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color bool
	// Context is the number of source lines shown above the marked line.
	Context  int
	PathMode PathMode
	BaseDir  string
	// Width truncates source lines to this many columns; 0 means unlimited.
	Width int
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	PathMode PathMode
	BaseDir  string
	// Max limits the number of diagnostics written; 0 means all.
	Max int
}

// Source supplies file text for source excerpts.
type Source interface {
	Contents(path string) (string, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(path string) (string, bool)

func (f SourceFunc) Contents(path string) (string, bool) { return f(path) }

func formatPath(path string, mode PathMode, base string) string {
	switch mode {
	case PathModeAbsolute:
		return path
	case PathModeBasename:
		return filepath.Base(path)
	case PathModeRelative:
		if base == "" {
			return path
		}
		if rel, err := filepath.Rel(base, path); err == nil {
			return rel
		}
		return path
	default:
		if base == "" {
			return path
		}
		rel, err := filepath.Rel(base, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return path
		}
		return rel
	}
}
