package workspace

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"quill/internal/build"
	"quill/internal/diag"
	"quill/internal/logging"
	"quill/internal/project"
	"quill/internal/throttle"
)

// DefaultRouteDebounce is the per-path quiet period applied by Route.
const DefaultRouteDebounce = 50 * time.Millisecond

type Options struct {
	Documents *Documents
	Notifier  build.Notifier
	Matcher   project.Matcher
	// RouteDebounce defaults to DefaultRouteDebounce; negative disables it.
	RouteDebounce time.Duration
	ExtraFilters  []any
	Jobs          int
	Logger        *slog.Logger
}

// Registry owns every workspace. All methods are safe for concurrent use;
// list accessors return snapshots.
type Registry struct {
	opts   Options
	docs   *Documents
	logger *slog.Logger
	routes *throttle.Keyed[string]
	group  singleflight.Group

	mu         sync.Mutex
	standard   []*Workspace
	standalone map[string]*Workspace
	extra      []any
}

func NewRegistry(opts Options) *Registry {
	if opts.Documents == nil {
		opts.Documents = NewDocuments()
	}
	logger := logging.OrDiscard(opts.Logger)
	return &Registry{
		opts:       opts,
		docs:       opts.Documents,
		logger:     logger,
		routes:     throttle.NewKeyed[string](routeDelay(opts.RouteDebounce), logger),
		standalone: make(map[string]*Workspace),
		extra:      opts.ExtraFilters,
	}
}

func routeDelay(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultRouteDebounce
	case d < 0:
		return 0
	}
	return d
}

// SetRouteDebounce changes the quiet period of later Route calls, with the
// same zero and negative handling as Options.RouteDebounce.
func (r *Registry) SetRouteDebounce(d time.Duration) {
	r.routes.SetDelay(routeDelay(d))
}

// Documents returns the open-document store shared with every builder.
func (r *Registry) Documents() *Documents { return r.docs }

func (r *Registry) newBuilder(root, standaloneFile string) *build.Builder {
	r.mu.Lock()
	extra := r.extra
	r.mu.Unlock()
	return build.New(build.Options{
		Root:           root,
		StandaloneFile: standaloneFile,
		Notifier:       r.opts.Notifier,
		Matcher:        r.opts.Matcher,
		Overlay:        r.docs.Get,
		ExtraFilters:   extra,
		Jobs:           r.opts.Jobs,
		Logger:         r.logger,
	})
}

// CreateWorkspace registers the project rooted at path and runs its first
// build. A path that is already registered returns the existing workspace
// and its first-run result, retrying a first run that was canceled. A
// failed first build leaves the workspace registered in a degraded state
// and returns the error.
func (r *Registry) CreateWorkspace(ctx context.Context, path string) (*Workspace, error) {
	path = project.CanonicalPath(path)
	if ws, ok := r.Find(path); ok {
		return ws, ws.Builder.Start(ctx)
	}
	builder := r.newBuilder(path, "")
	r.mu.Lock()
	for _, ws := range r.standard {
		if ws.Path == path {
			r.mu.Unlock()
			return ws, ws.Builder.Start(ctx)
		}
	}
	ws := &Workspace{Path: path, Builder: builder}
	r.standard = append(r.standard, ws)
	r.mu.Unlock()

	r.logger.Info("workspace created", "path", path)
	return ws, ws.Builder.Start(ctx)
}

// CreateStandaloneWorkspace wraps filePath in a single-file project.
// Concurrent callers for the same file share one creation. The shared first
// build is not tied to any caller's ctx; a caller whose ctx ends stops
// waiting while the build goes on.
func (r *Registry) CreateStandaloneWorkspace(ctx context.Context, filePath string) (*Workspace, error) {
	filePath = project.CanonicalPath(filePath)
	r.mu.Lock()
	if ws, ok := r.standalone[filePath]; ok {
		r.mu.Unlock()
		return ws, nil
	}
	r.mu.Unlock()

	buildCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(filePath, func() (any, error) {
		r.mu.Lock()
		if ws, ok := r.standalone[filePath]; ok {
			r.mu.Unlock()
			return ws, nil
		}
		r.mu.Unlock()
		builder := r.newBuilder("", filePath)
		r.mu.Lock()
		if ws, ok := r.standalone[filePath]; ok {
			r.mu.Unlock()
			return ws, nil
		}
		ws := &Workspace{Path: filePath, Standalone: true, Builder: builder}
		r.standalone[filePath] = ws
		r.mu.Unlock()
		r.logger.Info("standalone workspace created", "path", filePath)
		return ws, ws.Builder.Start(buildCtx)
	})
	select {
	case res := <-ch:
		ws, _ := res.Val.(*Workspace)
		return ws, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// All returns standard workspaces first, then standalone ones.
func (r *Registry) All() []*Workspace {
	return append(r.Standard(), r.Standalone()...)
}

// Standard returns the standard workspaces in creation order.
func (r *Registry) Standard() []*Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.standard)
}

// Standalone returns the standalone workspaces sorted by file.
func (r *Registry) Standalone() []*Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Workspace, 0, len(r.standalone))
	for _, ws := range r.standalone {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Sources returns every workspace as a diagnostic source.
func (r *Registry) Sources() []diag.Source {
	all := r.All()
	out := make([]diag.Source, len(all))
	for i, ws := range all {
		out[i] = ws
	}
	return out
}

// Find returns the standard workspace rooted at path.
func (r *Registry) Find(path string) (*Workspace, bool) {
	path = project.CanonicalPath(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range r.standard {
		if ws.Path == path {
			return ws, true
		}
	}
	return nil, false
}

// Destroy unregisters ws and cancels its builds. Unknown workspaces are
// ignored.
func (r *Registry) Destroy(ws *Workspace) {
	if ws == nil {
		return
	}
	r.mu.Lock()
	if ws.Standalone {
		if r.standalone[ws.Path] == ws {
			delete(r.standalone, ws.Path)
		}
	} else {
		r.standard = slices.DeleteFunc(r.standard, func(w *Workspace) bool { return w == ws })
	}
	r.mu.Unlock()
	if ws.Builder != nil {
		ws.Builder.Close()
	}
	r.logger.Info("workspace destroyed", "path", ws.Path, "standalone", ws.Standalone)
}

// Reload rebuilds a standard workspace from scratch after its configuration
// changed.
func (r *Registry) Reload(ctx context.Context, ws *Workspace) (*Workspace, error) {
	r.Destroy(ws)
	return r.CreateWorkspace(ctx, ws.Path)
}

// Owns reports whether ws claims file. It waits for ws's first build so an
// initializing project is not mistaken for one that does not own the file.
func (r *Registry) Owns(ctx context.Context, ws *Workspace, file string) bool {
	if err := ws.WaitFirstRun(ctx); err != nil && ctx.Err() != nil {
		return false
	}
	return ws.Builder.Owns(file)
}

// ReconcileStandalone destroys standalone workspaces whose file a standard
// workspace now owns or that is no longer open, and creates standalone
// workspaces for open documents nobody owns. It is idempotent.
func (r *Registry) ReconcileStandalone(ctx context.Context) error {
	standard := r.Standard()
	if err := waitAll(ctx, standard); err != nil {
		return err
	}
	owned := func(file string) bool {
		for _, ws := range standard {
			if ws.Builder.Owns(file) {
				return true
			}
		}
		return false
	}

	for _, ws := range r.Standalone() {
		if owned(ws.Path) || !r.docs.IsOpen(ws.Path) {
			r.Destroy(ws)
		}
	}
	for _, path := range r.docs.Paths() {
		if owned(path) {
			continue
		}
		if _, err := r.CreateStandaloneWorkspace(ctx, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("standalone workspace degraded", "path", path, "err", err)
		}
	}
	return nil
}

func waitAll(ctx context.Context, workspaces []*Workspace) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ws := range workspaces {
		g.Go(func() error {
			if err := ws.WaitFirstRun(gctx); err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	return g.Wait()
}

// Route applies a change of path to every workspace that owns it and
// re-runs those workspaces. contents is the new text, nil when the file was
// deleted. Changes to the same path are debounced and the latest wins. The
// returned channel closes once the change has been applied and the runs
// finished.
func (r *Registry) Route(ctx context.Context, path string, contents *string) <-chan struct{} {
	path = project.CanonicalPath(path)
	var text string
	deleted := contents == nil
	if !deleted {
		text = *contents
	}
	return r.routes.Run(path, func(context.Context) error {
		if filepath.Base(path) == project.ManifestName {
			return r.reloadFor(ctx, path)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, ws := range r.All() {
			var changed bool
			if deleted {
				changed = ws.Builder.RemoveFile(path)
			} else {
				changed = ws.Builder.SetFile(path, text)
			}
			if !changed {
				continue
			}
			g.Go(func() error {
				// A failed first run is not retried by edits.
				if err := ws.WaitFirstRun(gctx); err != nil {
					return nil
				}
				_, err := ws.Builder.RunOnce(gctx)
				return err
			})
		}
		return g.Wait()
	})
}

// reloadFor reloads every standard workspace configured from manifest, then
// reconciles standalone workspaces against the new file lists.
func (r *Registry) reloadFor(ctx context.Context, manifest string) error {
	var errs []error
	for _, ws := range r.Standard() {
		if ws.ConfigPath() != manifest {
			continue
		}
		r.logger.Info("manifest changed, reloading workspace", "path", ws.Path)
		if _, err := r.Reload(ctx, ws); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.ReconcileStandalone(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetExtraFilters updates the client-supplied filters of every workspace.
func (r *Registry) SetExtraFilters(filters []any) {
	r.mu.Lock()
	r.extra = filters
	r.mu.Unlock()
	for _, ws := range r.All() {
		ws.Builder.SetExtraFilters(filters)
	}
}

// Close destroys every workspace.
func (r *Registry) Close() {
	for _, ws := range r.All() {
		r.Destroy(ws)
	}
	r.routes.Dispose()
}
