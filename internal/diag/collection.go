package diag

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Source is anything that owns diagnostics behind a first-run signal,
// typically a workspace.
type Source interface {
	// WaitFirstRun blocks until the first build finished. A non-nil error
	// other than a context error means the first run failed.
	WaitFirstRun(ctx context.Context) error
	// Diagnostics returns the current, already filtered diagnostics.
	Diagnostics() []Diagnostic
}

// Patch maps an absolute file path to its complete current diagnostic list.
// An empty list means every diagnostic of that file was cleared.
type Patch map[string][]Diagnostic

// Collection remembers what was last sent per file so GetPatch only returns
// files whose diagnostics changed.
type Collection struct {
	mu   sync.Mutex
	sent map[string][]string
}

func NewCollection() *Collection {
	return &Collection{sent: make(map[string][]string)}
}

// GetPatch returns the files whose diagnostics changed since the previous
// call. Sources whose first run failed contribute nothing; only context
// cancellation makes it fail.
func (c *Collection) GetPatch(ctx context.Context, sources []Source) (Patch, error) {
	current, err := collect(ctx, sources)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	patch := make(Patch)
	for path, list := range current {
		fp := fingerprint(list)
		if prev, ok := c.sent[path]; ok && slices.Equal(prev, fp) {
			continue
		}
		patch[path] = list
		c.sent[path] = fp
	}
	for path := range c.sent {
		if _, ok := current[path]; ok {
			continue
		}
		patch[path] = []Diagnostic{}
		delete(c.sent, path)
	}
	return patch, nil
}

// Forget drops the history of path, e.g. after the client was told to clear it.
func (c *Collection) Forget(path string) {
	c.mu.Lock()
	delete(c.sent, path)
	c.mu.Unlock()
}

type crossKey struct {
	code Code
	rng  Range
}

func collect(ctx context.Context, sources []Source) (map[string][]Diagnostic, error) {
	lists := make([][]Diagnostic, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if src == nil {
			continue
		}
		g.Go(func() error {
			if err := src.WaitFirstRun(gctx); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			lists[i] = src.Diagnostics()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byFile := make(map[string][]Diagnostic)
	seen := make(map[string]map[crossKey]struct{})
	for _, list := range lists {
		for _, d := range list {
			keys := seen[d.FilePath]
			if keys == nil {
				keys = make(map[crossKey]struct{})
				seen[d.FilePath] = keys
			}
			key := crossKey{code: d.Code, rng: d.Range}
			if _, dup := keys[key]; dup {
				continue
			}
			keys[key] = struct{}{}
			byFile[d.FilePath] = append(byFile[d.FilePath], d)
		}
	}
	return byFile, nil
}

// fingerprint is the change signal for a file: its ordered messages. A
// same-message diagnostic that only moved is not reported as a change.
func fingerprint(list []Diagnostic) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Message
	}
	return out
}
