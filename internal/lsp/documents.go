package lsp

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"quill/internal/fswatch"
	"quill/internal/project"
)

func (s *Server) handleDidOpen(ctx context.Context, params didOpenTextDocumentParams) {
	path := uriToPath(params.TextDocument.URI)
	if path == "" {
		return
	}
	text := params.TextDocument.Text
	s.docs.Set(path, text)
	s.afterRoutes(ctx, s.registry.Route(ctx, path, &text))
}

func (s *Server) handleDidChange(ctx context.Context, params didChangeTextDocumentParams) {
	path := uriToPath(params.TextDocument.URI)
	if path == "" {
		return
	}
	current, ok := s.docs.Get(path)
	if !ok {
		s.logger.Debug("lsp: change for unopened document", "path", path)
		return
	}
	text := applyChanges(current, params.ContentChanges)
	s.docs.Set(path, text)
	s.afterRoutes(ctx, s.registry.Route(ctx, path, &text))
}

func (s *Server) handleDidSave(ctx context.Context, params didSaveTextDocumentParams) {
	path := uriToPath(params.TextDocument.URI)
	if path == "" {
		return
	}
	if params.Text != nil {
		s.docs.Set(path, *params.Text)
	}
	text, ok := s.docs.Get(path)
	if !ok {
		return
	}
	s.afterRoutes(ctx, s.registry.Route(ctx, path, &text))
}

// handleDidClose hands the file back to the disk: owning projects reload
// the saved text, or drop the file when it was never saved.
func (s *Server) handleDidClose(ctx context.Context, params didCloseTextDocumentParams) {
	path := uriToPath(params.TextDocument.URI)
	if path == "" {
		return
	}
	s.docs.Close(path)
	var contents *string
	if data, err := os.ReadFile(path); err == nil {
		text := string(data)
		contents = &text
	}
	s.afterRoutes(ctx, s.registry.Route(ctx, path, contents))
}

func (s *Server) handleDidChangeWatchedFiles(ctx context.Context, params didChangeWatchedFilesParams) {
	events := make([]fswatch.Event, 0, len(params.Changes))
	for _, change := range params.Changes {
		path := uriToPath(change.URI)
		if path == "" {
			continue
		}
		kind, ok := watchedKind(change.Type)
		if !ok {
			continue
		}
		events = append(events, fswatch.Event{Kind: kind, Path: path})
	}

	var done []<-chan struct{}
	for _, ev := range fswatch.ExpandAll(events) {
		if filepath.Base(ev.Path) == project.ManifestName && ev.Kind == fswatch.Created {
			if ch, ok := s.adoptProject(ctx, filepath.Dir(ev.Path)); ok {
				done = append(done, ch)
				continue
			}
		}
		if ev.Kind != fswatch.Deleted && s.docs.IsOpen(ev.Path) {
			continue
		}
		var contents *string
		if ev.Kind != fswatch.Deleted {
			data, err := os.ReadFile(ev.Path)
			if err != nil {
				s.logger.Debug("lsp: skip unreadable change", "path", ev.Path, "err", err)
				continue
			}
			text := string(data)
			contents = &text
		}
		done = append(done, s.registry.Route(ctx, ev.Path, contents))
	}
	s.afterRoutes(ctx, done...)
}

// adoptProject creates a workspace for a manifest that appeared inside one
// of the client's folders. It reports false when dir is already a project
// or lies outside every folder.
func (s *Server) adoptProject(ctx context.Context, dir string) (<-chan struct{}, bool) {
	if _, ok := s.registry.Find(dir); ok {
		return nil, false
	}
	s.mu.Lock()
	inside := false
	for _, folder := range s.folders {
		if project.PathWithin(folder, dir) {
			inside = true
			break
		}
	}
	s.mu.Unlock()
	if !inside {
		return nil, false
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.registry.CreateWorkspace(ctx, dir); err != nil {
			s.logger.Warn("lsp: workspace degraded", "root", dir, "err", err)
		}
	}()
	return done, true
}

func watchedKind(t int) (fswatch.Kind, bool) {
	switch t {
	case fileCreated:
		return fswatch.Created, true
	case fileChanged:
		return fswatch.Changed, true
	case fileDeleted:
		return fswatch.Deleted, true
	}
	return 0, false
}

func (s *Server) handleDidChangeWorkspaceFolders(ctx context.Context, params didChangeWorkspaceFoldersParams) {
	var added []string
	for _, f := range params.Event.Added {
		if path := uriToPath(f.URI); path != "" {
			added = append(added, path)
		}
	}
	var removed []string
	for _, f := range params.Event.Removed {
		if path := uriToPath(f.URI); path != "" {
			removed = append(removed, path)
		}
	}

	s.mu.Lock()
	folders := s.folders[:0:0]
	for _, f := range s.folders {
		if !slices.Contains(removed, f) {
			folders = append(folders, f)
		}
	}
	s.folders = append(folders, added...)
	s.mu.Unlock()

	for _, ws := range s.registry.Standard() {
		for _, folder := range removed {
			if project.PathWithin(folder, ws.Path) {
				s.registry.Destroy(ws)
				break
			}
		}
	}
	go func() {
		s.addFolders(ctx, added)
		s.scheduleSync()
	}()
}
