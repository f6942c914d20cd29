// Package program is the in-memory file set a workspace validates. It holds
// the current contents of every project file (disk or editor overlay) and
// produces diagnostics for them.
package program

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"quill/internal/diag"
	"quill/internal/logging"
)

// SourceExt is the extension of files the checks look at. Other files are
// carried along for packaging only.
const SourceExt = ".ql"

// FileRef locates a file on disk (Src) and inside the package (Dest, slash
// separated).
type FileRef struct {
	Src  string
	Dest string
}

// Options tunes validation.
type Options struct {
	// SkipUnreferenced disables the "file not referenced" check. Single-file
	// programs cannot be referenced by anything.
	SkipUnreferenced bool
	MaxLineWidth     int
	Jobs             int
	Logger           *slog.Logger
}

type file struct {
	ref      FileRef
	contents string
	hash     uint64
}

// Program is safe for concurrent use.
type Program struct {
	mu    sync.RWMutex
	files map[string]*file
	diags []diag.Diagnostic
	// gen counts mutations; validated is the gen the diagnostics reflect.
	gen       uint64
	validated uint64
	opts      Options
	logger    *slog.Logger
}

func New(opts Options) *Program {
	if opts.MaxLineWidth <= 0 {
		opts.MaxLineWidth = 500
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	logger := logging.OrDiscard(opts.Logger)
	return &Program{
		files:  make(map[string]*file),
		gen:    1,
		opts:   opts,
		logger: logger,
	}
}

// HasFile reports whether src is loaded.
func (p *Program) HasFile(src string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.files[src]
	return ok
}

// SetFile loads or replaces a file. Identical contents are a no-op.
func (p *Program) SetFile(ref FileRef, contents string) {
	hash := xxh3.HashString(contents)
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.files[ref.Src]; ok && f.hash == hash && f.ref.Dest == ref.Dest {
		return
	}
	p.files[ref.Src] = &file{ref: ref, contents: contents, hash: hash}
	p.gen++
}

// RemoveFile unloads src if present.
func (p *Program) RemoveFile(src string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.files[src]; ok {
		delete(p.files, src)
		p.gen++
	}
}

// Files returns every loaded file sorted by source path.
func (p *Program) Files() []FileRef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FileRef, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f.ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Src < out[j].Src })
	return out
}

// Contents returns the loaded text of src.
func (p *Program) Contents(src string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.files[src]
	if !ok {
		return "", false
	}
	return f.contents, true
}

// Diagnostics returns the result of the last Validate.
func (p *Program) Diagnostics() []diag.Diagnostic {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]diag.Diagnostic(nil), p.diags...)
}

// Validate re-checks the program when something changed since the last call.
// Panics inside checks are reported as errors.
func (p *Program) Validate(ctx context.Context) error {
	p.mu.RLock()
	gen := p.gen
	if gen == p.validated {
		p.mu.RUnlock()
		return nil
	}
	snapshot := make([]*file, 0, len(p.files))
	for _, f := range p.files {
		snapshot = append(snapshot, f)
	}
	p.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ref.Src < snapshot[j].ref.Src })

	byDest := make(map[string]*file, len(snapshot))
	for _, f := range snapshot {
		byDest[f.ref.Dest] = f
	}

	results := make([][]diag.Diagnostic, len(snapshot))
	imports := make([][]string, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.opts.Jobs, max(len(snapshot), 1)))
	for i, f := range snapshot {
		if !strings.HasSuffix(f.ref.Src, SourceExt) {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("validate %s: panic: %v", f.ref.Src, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], imports[i] = p.checkFile(f, byDest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	referenced := make(map[string]bool)
	for _, list := range imports {
		for _, dest := range list {
			referenced[dest] = true
		}
	}
	bag := diag.NewBag(0)
	for i, f := range snapshot {
		for _, d := range results[i] {
			bag.Add(d)
		}
		if p.opts.SkipUnreferenced || !strings.HasSuffix(f.ref.Src, SourceExt) {
			continue
		}
		if strings.HasPrefix(f.ref.Dest, "source/") || referenced[f.ref.Dest] {
			continue
		}
		bag.Add(diag.Warningf(diag.FileNotReferenced, f.ref.Src, diag.Range{}, "file is not referenced by any other file"))
	}
	bag.Sort()

	p.mu.Lock()
	p.diags = bag.Items()
	p.validated = gen
	p.mu.Unlock()
	p.logger.Debug("program validated", "files", len(snapshot), "diagnostics", bag.Len())
	return nil
}

// Resolve turns an import path written in importer into a package dest path.
// "pkg:/x/y.ql" is package-absolute; anything else is relative to importer.
func Resolve(importerDest, target string) string {
	if rest, ok := strings.CutPrefix(target, "pkg:/"); ok {
		return path.Clean(rest)
	}
	return path.Clean(path.Join(path.Dir(importerDest), target))
}
