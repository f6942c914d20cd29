package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"quill/internal/build"
	"quill/internal/diag"
	"quill/internal/logging"
	"quill/internal/project"
)

// target is one project the CLI builds: a root directory, or a single file
// when file is set.
type target struct {
	root string
	file string
}

// resolveTargets finds the projects named by path. A file is checked as a
// standalone project unless a manifest above it claims it; a directory
// yields every project beneath it, the project enclosing it, or the
// directory itself as a default project.
func resolveTargets(path string) ([]target, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	path = project.CanonicalPath(path)
	if !info.IsDir() {
		return []target{{file: path}}, nil
	}
	roots, err := project.DiscoverRoots(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover projects under %q: %w", path, err)
	}
	if len(roots) == 0 {
		root, ok, err := project.FindProjectRoot(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			root = path
		}
		roots = []string{root}
	}
	out := make([]target, len(roots))
	for i, r := range roots {
		out[i] = target{root: project.CanonicalPath(r)}
	}
	return out, nil
}

func (t target) name() string {
	if t.file != "" {
		return t.file
	}
	return t.root
}

// workspace is the root a builder for t reports progress under.
func (t target) workspace() string {
	if t.file != "" {
		return filepath.Dir(t.file)
	}
	return t.root
}

// startAll creates a builder per target and waits for every first run.
// Failures reach the user through base.Notifier; the returned errors are
// only logged.
func startAll(ctx context.Context, targets []target, base build.Options) []*build.Builder {
	logger := logging.OrDiscard(base.Logger)
	builders := make([]*build.Builder, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		opts := base
		opts.Root = t.root
		opts.StandaloneFile = t.file
		b := build.New(opts)
		builders[i] = b
		wg.Go(func() {
			if err := b.Start(ctx); err != nil {
				logger.Debug("first run did not succeed", "target", t.name(), "err", err)
			}
		})
	}
	wg.Wait()
	return builders
}

// collectDiagnostics merges the diagnostics of every builder, dropping
// duplicates reported by more than one project, in file order.
func collectDiagnostics(ctx context.Context, builders []*build.Builder) ([]diag.Diagnostic, error) {
	sources := make([]diag.Source, len(builders))
	for i, b := range builders {
		sources[i] = b
	}
	patch, err := diag.NewCollection().GetPatch(ctx, sources)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(patch))
	for p := range patch {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var all []diag.Diagnostic
	for _, p := range paths {
		all = append(all, patch[p]...)
	}
	diag.Sort(all)
	return all, nil
}

// contentsOf serves file text from the builders, then from disk.
func contentsOf(builders []*build.Builder) func(string) (string, bool) {
	return func(path string) (string, bool) {
		for _, b := range builders {
			if text, ok := b.Contents(path); ok {
				return text, true
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}
