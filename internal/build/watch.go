package build

import (
	"context"
	"path/filepath"

	"quill/internal/fswatch"
	"quill/internal/project"
	"quill/internal/throttle"
)

// Watch feeds file-system events into the builder until ctx is done or
// events is closed. Events are debounced per path; each settled change is
// applied to the program and followed by a run. A changed manifest reloads
// the whole project.
func (b *Builder) Watch(ctx context.Context, events <-chan fswatch.Event) error {
	delay := project.DefaultWatchDebounce
	if cfg := b.Config(); cfg != nil {
		delay = cfg.WatchDebounce
	}
	kt := throttle.NewKeyed[string](delay, b.logger)
	defer kt.Dispose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			for _, e := range fswatch.Expand(ev) {
				b.schedule(ctx, kt, e)
			}
		}
	}
}

func (b *Builder) schedule(ctx context.Context, kt *throttle.Keyed[string], ev fswatch.Event) {
	path := project.CanonicalPath(ev.Path)
	if b.isManifest(path) {
		kt.Run(path, func(context.Context) error {
			b.logger.Info("manifest changed, reloading", "path", path)
			return b.Reload(ctx)
		})
		return
	}
	kt.Run(path, func(context.Context) error {
		if !b.Apply(fswatch.Event{Kind: ev.Kind, Path: path}) {
			return nil
		}
		_, err := b.RunOnce(ctx)
		return err
	})
}

// Apply updates the program for one event without running. It reports
// whether the program changed.
func (b *Builder) Apply(ev fswatch.Event) bool {
	if ev.Kind == fswatch.Deleted {
		return b.RemoveFile(ev.Path)
	}
	return b.Reread(ev.Path)
}

func (b *Builder) isManifest(path string) bool {
	if filepath.Base(path) != project.ManifestName {
		return false
	}
	if cfg := b.Config(); cfg != nil && cfg.Path == path {
		return true
	}
	return !b.Standalone() && filepath.Dir(path) == b.root
}
