// Package build runs a project through validate, package and deploy. Runs of
// one project are serialized; a newer run cancels the one in flight at its
// next phase boundary.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quill/internal/buildpipeline"
	"quill/internal/diag"
	"quill/internal/logging"
	"quill/internal/observ"
	"quill/internal/program"
	"quill/internal/project"
)

var (
	// ErrFirstRunFailed wraps the cause of a failed Start. It is recorded
	// and returned by every later WaitFirstRun.
	ErrFirstRunFailed = errors.New("first run failed")
	// ErrNotStarted is returned by RunOnce before Start loaded a program.
	ErrNotStarted = errors.New("builder not started")
)

// Program is the file set a Builder validates. program.Program is the
// implementation used outside tests.
type Program interface {
	HasFile(src string) bool
	SetFile(ref program.FileRef, contents string)
	RemoveFile(src string)
	Validate(ctx context.Context) error
	Diagnostics() []diag.Diagnostic
	Files() []program.FileRef
	Contents(src string) (string, bool)
}

type Options struct {
	// Root is the project root. Ignored when StandaloneFile is set.
	Root string
	// StandaloneFile turns the builder into a single-file project.
	StandaloneFile string

	// Package enables the package phase; Deploy additionally enables deploy.
	Package  bool
	Deploy   bool
	Packager Packager
	// Deployer defaults to DeployerFor(config).
	Deployer Deployer

	Notifier Notifier
	Progress buildpipeline.ProgressSink
	Matcher  project.Matcher
	// Overlay returns editor contents that take precedence over disk.
	Overlay func(path string) (string, bool)
	// ExtraFilters are appended to the manifest's diagnostic_filters.
	ExtraFilters []any
	NewProgram   func(program.Options) Program
	Jobs         int
	Logger       *slog.Logger
}

// Builder owns one project's program and its run lifecycle.
type Builder struct {
	opts     Options
	root     string
	logger   *slog.Logger
	notifier Notifier
	filterer *diag.Filterer

	// runSem serializes runs; holding it means a run is in flight.
	runSem chan struct{}

	mu          sync.Mutex
	cfg         *project.Config
	prog        Program
	configDiags []diag.Diagnostic
	loadDiags   map[string]diag.Diagnostic
	extra       []any
	status      Status
	token       *Token
	timings     buildpipeline.Timings
	report      observ.Report
	closed      bool

	// startMu serializes Start; firstRun closes once a first run finished
	// without being canceled.
	startMu  sync.Mutex
	firstRun chan struct{}
	firstErr error
}

func New(opts Options) *Builder {
	root := opts.Root
	if opts.StandaloneFile != "" {
		opts.StandaloneFile = project.CanonicalPath(opts.StandaloneFile)
		root = filepath.Dir(opts.StandaloneFile)
	}
	if opts.Packager == nil {
		opts.Packager = ZipPackager{}
	}
	if opts.NewProgram == nil {
		opts.NewProgram = func(po program.Options) Program { return program.New(po) }
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := logging.OrDiscard(opts.Logger).With("root", root)
	return &Builder{
		opts:      opts,
		root:      project.CanonicalPath(root),
		logger:    logger,
		notifier:  notifier,
		filterer:  diag.NewFilterer(opts.Matcher),
		runSem:    make(chan struct{}, 1),
		loadDiags: make(map[string]diag.Diagnostic),
		extra:     opts.ExtraFilters,
		firstRun:  make(chan struct{}),
	}
}

// Root is the directory the builder was created for.
func (b *Builder) Root() string { return b.root }

// Standalone reports whether this is a single-file project.
func (b *Builder) Standalone() bool { return b.opts.StandaloneFile != "" }

// Config returns the loaded configuration, nil before Start.
func (b *Builder) Config() *project.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Status returns the current build status.
func (b *Builder) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// LastReport returns the phase timings of the last finished run.
func (b *Builder) LastReport() observ.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.report
}

// Timings returns the stage durations of the last finished run.
func (b *Builder) Timings() buildpipeline.Timings {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out buildpipeline.Timings
	for _, stage := range buildpipeline.Stages {
		if b.timings.Has(stage) {
			out.Set(stage, b.timings.Duration(stage))
		}
	}
	return out
}

// Start loads the configuration and every project file, then performs the
// first run. Once a first run finished, later calls return the recorded
// result; a failed first run is not retried. A first run cut short by ctx
// records nothing and returns ctx's error, so the next Start tries again.
func (b *Builder) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	select {
	case <-b.firstRun:
		return b.firstErr
	default:
	}
	err := b.start(ctx)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil && errors.Is(err, ctxErr) {
		b.logger.Debug("first run canceled", "err", err)
		return ctxErr
	}
	b.firstErr = err
	close(b.firstRun)
	return err
}

func (b *Builder) start(ctx context.Context) error {
	b.setStatus(StatusBuilding)
	if err := b.load(); err != nil {
		b.fail(err)
		return fmt.Errorf("%w: %w", ErrFirstRunFailed, err)
	}
	if _, err := b.RunOnce(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrFirstRunFailed, err)
	}
	return nil
}

// WaitFirstRun blocks until Start finished and returns its error.
func (b *Builder) WaitFirstRun(ctx context.Context) error {
	select {
	case <-b.firstRun:
		return b.firstErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FirstRunSucceeded reports whether Start finished without error.
func (b *Builder) FirstRunSucceeded() bool {
	select {
	case <-b.firstRun:
		return b.firstErr == nil
	default:
		return false
	}
}

// Reload re-reads the configuration and every file, then runs. On failure
// the previous program is kept and the error is also reported as a critical
// failure.
func (b *Builder) Reload(ctx context.Context) error {
	if err := b.load(); err != nil {
		b.fail(err)
		return err
	}
	_, err := b.RunOnce(ctx)
	return err
}

// Close cancels the run in flight; later runs return OutcomeCanceled.
func (b *Builder) Close() {
	b.mu.Lock()
	b.closed = true
	if b.token != nil {
		b.token.Cancel()
	}
	b.mu.Unlock()
}

// SetExtraFilters replaces the filters layered on top of the manifest's.
func (b *Builder) SetExtraFilters(filters []any) {
	b.mu.Lock()
	b.extra = filters
	b.mu.Unlock()
}

func (b *Builder) load() error {
	var (
		cfg      *project.Config
		problems []project.Problem
		err      error
	)
	if b.Standalone() {
		cfg, problems, err = project.Standalone(b.opts.StandaloneFile)
	} else {
		cfg, problems, err = project.LoadForRoot(b.root)
	}
	if err != nil {
		manifest := filepath.Join(b.root, project.ManifestName)
		b.mu.Lock()
		b.configDiags = []diag.Diagnostic{diag.Errorf(diag.ConfigInvalid, manifest, diag.Range{}, "%v", err)}
		b.mu.Unlock()
		return err
	}

	configDiags := make([]diag.Diagnostic, 0, len(problems))
	for _, p := range problems {
		configDiags = append(configDiags, diag.Errorf(diag.ConfigInvalid, p.Path, diag.Range{}, "%s", p.Message))
	}

	prog := b.opts.NewProgram(program.Options{
		SkipUnreferenced: b.Standalone(),
		Jobs:             b.opts.Jobs,
		Logger:           b.logger,
	})
	loadDiags := make(map[string]diag.Diagnostic)
	for _, ref := range b.discover(cfg) {
		contents, err := b.read(ref.Src)
		if err != nil {
			b.logger.Warn("cannot load file", "path", ref.Src, "err", err)
			loadDiags[ref.Src] = diag.Errorf(diag.FileLoadFailed, ref.Src, diag.Range{}, "cannot read file: %v", err)
			continue
		}
		prog.SetFile(ref, contents)
	}

	b.mu.Lock()
	b.cfg = cfg
	b.prog = prog
	b.configDiags = configDiags
	b.loadDiags = loadDiags
	b.mu.Unlock()
	b.logger.Debug("project loaded", "files", len(prog.Files()), "problems", len(problems))
	return nil
}

// discover lists every file under the root that the files list maps.
func (b *Builder) discover(cfg *project.Config) []program.FileRef {
	if b.Standalone() {
		return []program.FileRef{{Src: b.opts.StandaloneFile, Dest: filepath.Base(b.opts.StandaloneFile)}}
	}
	var refs []program.FileRef
	_ = filepath.WalkDir(cfg.RootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != cfg.RootDir && (strings.HasPrefix(d.Name(), ".") || p == cfg.StagingDir) {
				return filepath.SkipDir
			}
			return nil
		}
		p = project.CanonicalPath(p)
		if dest := b.destFor(cfg, p); dest != "" {
			refs = append(refs, program.FileRef{Src: p, Dest: dest})
		}
		return nil
	})
	return refs
}

func (b *Builder) destFor(cfg *project.Config, path string) string {
	if cfg == nil {
		return ""
	}
	if b.Standalone() {
		if path == b.opts.StandaloneFile {
			return filepath.Base(path)
		}
		return ""
	}
	if path == cfg.OutFile || project.PathWithin(cfg.StagingDir, path) {
		return ""
	}
	return project.DestPath(cfg.Files, cfg.RootDir, path, b.opts.Matcher)
}

func (b *Builder) read(path string) (string, error) {
	if b.opts.Overlay != nil {
		if contents, ok := b.opts.Overlay(path); ok {
			return contents, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasFile reports whether path is loaded in the program.
func (b *Builder) HasFile(path string) bool {
	b.mu.Lock()
	prog := b.prog
	b.mu.Unlock()
	return prog != nil && prog.HasFile(project.CanonicalPath(path))
}

// Owns reports whether path is loaded or would be included by the files
// list.
func (b *Builder) Owns(path string) bool {
	path = project.CanonicalPath(path)
	b.mu.Lock()
	prog, cfg := b.prog, b.cfg
	b.mu.Unlock()
	if prog != nil && prog.HasFile(path) {
		return true
	}
	return b.destFor(cfg, path) != ""
}

// SetFile loads contents for path if the project includes it and reports
// whether it did.
func (b *Builder) SetFile(path, contents string) bool {
	path = project.CanonicalPath(path)
	b.mu.Lock()
	prog, cfg := b.prog, b.cfg
	delete(b.loadDiags, path)
	b.mu.Unlock()
	if prog == nil {
		return false
	}
	dest := b.destFor(cfg, path)
	if dest == "" {
		return false
	}
	prog.SetFile(program.FileRef{Src: path, Dest: dest}, contents)
	return true
}

// RemoveFile unloads path, or every loaded file beneath it when path is a
// directory. It reports whether anything was removed.
func (b *Builder) RemoveFile(path string) bool {
	path = project.CanonicalPath(path)
	b.mu.Lock()
	prog := b.prog
	_, hadLoadDiag := b.loadDiags[path]
	delete(b.loadDiags, path)
	b.mu.Unlock()
	if prog == nil {
		return hadLoadDiag
	}
	if prog.HasFile(path) {
		prog.RemoveFile(path)
		return true
	}
	removed := hadLoadDiag
	prefix := path + string(filepath.Separator)
	for _, ref := range prog.Files() {
		if strings.HasPrefix(ref.Src, prefix) {
			prog.RemoveFile(ref.Src)
			removed = true
		}
	}
	return removed
}

// Reread reloads path from the overlay or disk. A file that vanished is
// removed. It reports whether the program changed.
func (b *Builder) Reread(path string) bool {
	path = project.CanonicalPath(path)
	contents, err := b.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b.RemoveFile(path)
		}
		b.mu.Lock()
		cfg := b.cfg
		if b.destFor(cfg, path) == "" {
			b.mu.Unlock()
			return false
		}
		b.loadDiags[path] = diag.Errorf(diag.FileLoadFailed, path, diag.Range{}, "cannot read file: %v", err)
		b.mu.Unlock()
		return true
	}
	return b.SetFile(path, contents)
}

// Contents returns the loaded text of path.
func (b *Builder) Contents(path string) (string, bool) {
	b.mu.Lock()
	prog := b.prog
	b.mu.Unlock()
	if prog == nil {
		return "", false
	}
	return prog.Contents(project.CanonicalPath(path))
}

// Diagnostics returns configuration, load and program diagnostics after
// the project's filters.
func (b *Builder) Diagnostics() []diag.Diagnostic {
	b.mu.Lock()
	prog, cfg := b.prog, b.cfg
	all := slices.Clone(b.configDiags)
	loadPaths := make([]string, 0, len(b.loadDiags))
	for p := range b.loadDiags {
		loadPaths = append(loadPaths, p)
	}
	sort.Strings(loadPaths)
	for _, p := range loadPaths {
		all = append(all, b.loadDiags[p])
	}
	extra := b.extra
	b.mu.Unlock()

	if prog != nil {
		all = append(all, prog.Diagnostics()...)
	}
	if cfg == nil {
		return all
	}
	return b.filterer.Filter(diag.FilterConfig{
		RootDir:           cfg.RootDir,
		DiagnosticFilters: slices.Concat(cfg.DiagnosticFilters, extra),
		IgnoreErrorCodes:  cfg.IgnoreErrorCodes,
	}, all)
}

// RunOnce cancels the run in flight, waits for it to finish, then runs
// under a fresh token. A run superseded before it finishes returns
// OutcomeCanceled and a nil error.
func (b *Builder) RunOnce(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeCanceled, err
	}
	tok := NewToken()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return OutcomeCanceled, nil
	}
	if b.token != nil {
		b.token.Cancel()
	}
	b.token = tok
	b.mu.Unlock()

	select {
	case b.runSem <- struct{}{}:
	case <-ctx.Done():
		return OutcomeCanceled, ctx.Err()
	}
	defer func() { <-b.runSem }()
	return b.run(ctx, tok)
}

func (b *Builder) run(ctx context.Context, tok *Token) (Outcome, error) {
	b.mu.Lock()
	prog, cfg := b.prog, b.cfg
	b.mu.Unlock()
	if prog == nil {
		return OutcomeBroken, ErrNotStarted
	}
	logger := b.logger.With("run", uuid.NewString())
	timer := observ.NewTimer()
	var timings buildpipeline.Timings

	canceled := func(stage buildpipeline.Stage) bool {
		if !tok.Canceled() {
			return false
		}
		logger.Debug("run superseded", "before", stage)
		b.emit(buildpipeline.Event{Stage: stage, Status: buildpipeline.StatusCanceled})
		return true
	}

	if canceled(buildpipeline.StageValidate) {
		return OutcomeCanceled, nil
	}
	b.setStatus(StatusBuilding)
	if err := b.phase(timer, &timings, buildpipeline.StageValidate, func() error {
		return prog.Validate(ctx)
	}); err != nil {
		return b.broken(ctx, logger, err)
	}

	if b.opts.Package {
		if canceled(buildpipeline.StagePackage) {
			return OutcomeCanceled, nil
		}
		if diag.HasErrors(b.Diagnostics()) {
			logger.Info("skipping package, project has errors")
		} else {
			var res PackageResult
			if err := b.phase(timer, &timings, buildpipeline.StagePackage, func() error {
				var err error
				res, err = b.opts.Packager.Package(ctx, cfg, packageFiles(prog))
				return err
			}); err != nil {
				return b.broken(ctx, logger, err)
			}
			logger.Info("packaged", "out", res.OutFile, "written", res.Written, "skipped", res.Skipped)

			if b.opts.Deploy {
				if canceled(buildpipeline.StageDeploy) {
					return OutcomeCanceled, nil
				}
				deployer := b.opts.Deployer
				if deployer == nil {
					deployer = DeployerFor(cfg)
				}
				if err := b.phase(timer, &timings, buildpipeline.StageDeploy, func() error {
					if deployer == nil {
						return ErrNoDeployTarget
					}
					return deployer.Deploy(ctx, cfg, res.OutFile)
				}); err != nil {
					return b.broken(ctx, logger, err)
				}
			}
		}
	}

	b.mu.Lock()
	b.timings = timings
	b.report = timer.Report()
	b.mu.Unlock()
	b.setStatus(StatusSuccess)
	logger.Debug("run finished", "total_ms", timer.Report().TotalMS)
	return OutcomeValidated, nil
}

// phase runs fn as stage, recovering panics and recording its duration.
func (b *Builder) phase(timer *observ.Timer, timings *buildpipeline.Timings, stage buildpipeline.Stage, fn func() error) (err error) {
	b.emit(buildpipeline.Event{Stage: stage, Status: buildpipeline.StatusWorking})
	idx := timer.Begin(string(stage))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", stage, r)
		}
		elapsed := timer.End(idx, "")
		timings.Set(stage, elapsed)
		status := buildpipeline.StatusDone
		if err != nil {
			status = buildpipeline.StatusError
		}
		b.emit(buildpipeline.Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	}()
	return fn()
}

// broken ends a run whose phase failed. A failure caused by ctx ending is a
// cancellation and is not reported.
func (b *Builder) broken(ctx context.Context, logger *slog.Logger, err error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("run canceled by context", "err", err)
		return OutcomeCanceled, ctxErr
	}
	logger.Error("run failed", "err", err)
	b.fail(err)
	return OutcomeBroken, err
}

func (b *Builder) fail(err error) {
	b.setStatus(StatusCriticalError)
	b.notifier.CriticalFailure(b.root, fmt.Sprintf("%s: %v", b.root, err))
}

func (b *Builder) setStatus(s Status) {
	b.mu.Lock()
	changed := b.status != s
	b.status = s
	b.mu.Unlock()
	if changed {
		b.notifier.BuildStatus(b.root, s)
	}
}

func (b *Builder) emit(evt buildpipeline.Event) {
	if b.opts.Progress == nil {
		return
	}
	evt.Workspace = b.root
	b.opts.Progress.OnEvent(evt)
}

func packageFiles(prog Program) []PackageFile {
	refs := prog.Files()
	out := make([]PackageFile, 0, len(refs))
	for _, ref := range refs {
		contents, ok := prog.Contents(ref.Src)
		if !ok {
			continue
		}
		out = append(out, PackageFile{Src: ref.Src, Dest: ref.Dest, Contents: []byte(contents)})
	}
	return out
}

// WaitIdle blocks until no run is in flight.
func (b *Builder) WaitIdle(ctx context.Context) error {
	select {
	case b.runSem <- struct{}{}:
		<-b.runSem
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
