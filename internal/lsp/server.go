// Package lsp serves quill workspaces to editors over the Language Server
// Protocol.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"quill/internal/diag"
	"quill/internal/logging"
	"quill/internal/project"
	"quill/internal/throttle"
	"quill/internal/version"
	"quill/internal/workspace"
)

// ErrExitWithoutShutdown is returned by Serve when the client sent exit
// without a preceding shutdown request.
var ErrExitWithoutShutdown = errors.New("lsp: exit without shutdown")

type Options struct {
	Logger *slog.Logger
	// LevelVar, when set, is adjusted by the quill.logLevel setting.
	LevelVar      *slog.LevelVar
	Matcher       project.Matcher
	RouteDebounce time.Duration
	Jobs          int
}

// Server is a language server for one client connection.
type Server struct {
	opts       Options
	logger     *slog.Logger
	registry   *workspace.Registry
	docs       *workspace.Documents
	collection *diag.Collection
	refresh    *throttle.Throttle
	outbox     chan outgoing

	mu       sync.Mutex
	conn     *jsonrpc2.Conn
	ctx      context.Context
	folders  []string
	shutdown bool
	exitErr  error
}

type outgoing struct {
	method string
	params any
}

func NewServer(opts Options) *Server {
	logger := logging.OrDiscard(opts.Logger)
	s := &Server{
		opts:       opts,
		logger:     logger,
		collection: diag.NewCollection(),
		refresh:    throttle.New(logger),
		outbox:     make(chan outgoing, 256),
		ctx:        context.Background(),
	}
	s.registry = workspace.NewRegistry(workspace.Options{
		Notifier:      s,
		Matcher:       opts.Matcher,
		RouteDebounce: opts.RouteDebounce,
		Jobs:          opts.Jobs,
		Logger:        logger,
	})
	s.docs = s.registry.Documents()
	return s
}

// Registry exposes the server's workspaces.
func (s *Server) Registry() *workspace.Registry { return s.registry }

// Serve handles the connection carried by stream until the client exits or
// ctx is canceled. A Server serves a single connection.
func (s *Server) Serve(ctx context.Context, stream jsonrpc2.ObjectStream) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.drainOutbox(ctx)

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
	}
	cancel()
	s.registry.Close()
	s.refresh.Dispose()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.logger.Debug("lsp: received", "method", req.Method, "notification", req.Notif)

	s.mu.Lock()
	down := s.shutdown
	s.mu.Unlock()
	if down && req.Method != "exit" {
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "server is shutting down"}
	}

	switch req.Method {
	case "initialize":
		return withParams(req, s.handleInitialize)
	case "initialized":
		s.handleInitialized(ctx)
		return nil, nil
	case "textDocument/didOpen":
		return notification(ctx, req, s.handleDidOpen)
	case "textDocument/didChange":
		return notification(ctx, req, s.handleDidChange)
	case "textDocument/didSave":
		return notification(ctx, req, s.handleDidSave)
	case "textDocument/didClose":
		return notification(ctx, req, s.handleDidClose)
	case "workspace/didChangeWatchedFiles":
		return notification(ctx, req, s.handleDidChangeWatchedFiles)
	case "workspace/didChangeConfiguration":
		return notification(ctx, req, s.handleDidChangeConfiguration)
	case "workspace/didChangeWorkspaceFolders":
		return notification(ctx, req, s.handleDidChangeWorkspaceFolders)
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return nil, nil
	case "exit":
		s.mu.Lock()
		if !s.shutdown {
			s.exitErr = ErrExitWithoutShutdown
		}
		s.mu.Unlock()
		if err := conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
			s.logger.Warn("lsp: close connection", "err", err)
		}
		return nil, nil
	}
	if req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
}

func decodeParams[T any](req *jsonrpc2.Request) (T, error) {
	var params T
	if req.Params == nil {
		return params, nil
	}
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		return params, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return params, nil
}

func withParams[T any](req *jsonrpc2.Request, fn func(T) (any, error)) (any, error) {
	params, err := decodeParams[T](req)
	if err != nil {
		return nil, err
	}
	return fn(params)
}

func notification[T any](ctx context.Context, req *jsonrpc2.Request, fn func(context.Context, T)) (any, error) {
	params, err := decodeParams[T](req)
	if err != nil {
		return nil, err
	}
	fn(ctx, params)
	return nil, nil
}

func (s *Server) handleInitialize(params initializeParams) (any, error) {
	var folders []string
	for _, f := range params.WorkspaceFolders {
		if path := uriToPath(f.URI); path != "" {
			folders = append(folders, path)
		}
	}
	if len(folders) == 0 {
		if path := uriToPath(params.RootURI); path != "" {
			folders = append(folders, path)
		} else if params.RootPath != "" {
			folders = append(folders, project.CanonicalPath(params.RootPath))
		}
	}
	s.mu.Lock()
	s.folders = folders
	s.mu.Unlock()
	s.applySettings(params.InitializationOptions)

	return initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save:      saveOptions{IncludeText: true},
			},
			Workspace: workspaceCapabilities{
				WorkspaceFolders: workspaceFoldersServerCapabilities{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: serverInfo{Name: "quill", Version: version.Version},
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context) {
	s.mu.Lock()
	folders := append([]string(nil), s.folders...)
	s.mu.Unlock()
	go func() {
		s.addFolders(ctx, folders)
		s.scheduleSync()
	}()
}

// addFolders creates a workspace for every project found under each folder.
// A folder without any manifest becomes a project with default settings.
func (s *Server) addFolders(ctx context.Context, folders []string) {
	var wg sync.WaitGroup
	for _, folder := range folders {
		roots, err := project.DiscoverRoots(folder)
		if err != nil {
			s.logger.Warn("lsp: discover projects", "folder", folder, "err", err)
			continue
		}
		if len(roots) == 0 {
			roots = []string{folder}
		}
		for _, root := range roots {
			wg.Go(func() {
				if _, err := s.registry.CreateWorkspace(ctx, root); err != nil {
					s.logger.Warn("lsp: workspace degraded", "root", root, "err", err)
				}
			})
		}
	}
	wg.Wait()
}

// scheduleSync reconciles standalone workspaces and publishes what changed.
// Bursts collapse into the latest request.
func (s *Server) scheduleSync() <-chan struct{} {
	return s.refresh.Run(s.sync)
}

// afterRoutes schedules a sync once every channel in done has closed.
func (s *Server) afterRoutes(ctx context.Context, done ...<-chan struct{}) {
	go func() {
		for _, ch := range done {
			select {
			case <-ch:
			case <-ctx.Done():
				return
			}
		}
		s.scheduleSync()
	}()
}

func (s *Server) sync(ctx context.Context) error {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(base, cancel)
	defer stop()

	err := s.registry.ReconcileStandalone(ctx)
	if err == nil {
		err = s.publish(ctx)
	}
	if err != nil && ctx.Err() != nil {
		// Superseded or shutting down.
		return nil
	}
	return err
}
