package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/build"
	"quill/internal/diagfmt"
	"quill/internal/fswatch"
	"quill/internal/project"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rebuild projects as their files change",
	Long: `Watch validates every project found at path and keeps doing so as files
change on disk, printing fresh diagnostics after each run. With --package the
projects are also packaged after every clean run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("package", false, "package after every clean run")
	watchCmd.Flags().Bool("deploy", false, "deploy after every package (implies --package)")
}

type statusMsg struct {
	root     string
	status   build.Status
	critical string
}

// chanNotifier forwards notifications without blocking; messages are
// dropped when the consumer falls behind.
type chanNotifier chan statusMsg

func (c chanNotifier) BuildStatus(root string, status build.Status) {
	select {
	case c <- statusMsg{root: root, status: status}:
	default:
	}
}

func (c chanNotifier) CriticalFailure(root, message string) {
	select {
	case c <- statusMsg{root: root, critical: message}:
	default:
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	pkg, err := cmd.Flags().GetBool("package")
	if err != nil {
		return fmt.Errorf("failed to get package flag: %w", err)
	}
	deploy, err := cmd.Flags().GetBool("deploy")
	if err != nil {
		return fmt.Errorf("failed to get deploy flag: %w", err)
	}
	jobs, err := jobsFlag(cmd)
	if err != nil {
		return err
	}
	colorOn, err := useColor(cmd, os.Stdout)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, "watch", nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	targets, err := resolveTargets(path)
	if err != nil {
		return err
	}
	notes := make(chanNotifier, 64)
	builders := startAll(ctx, targets, build.Options{
		Package:  pkg || deploy,
		Deploy:   deploy,
		Notifier: notes,
		Matcher:  project.GlobMatcher{},
		Jobs:     jobs,
		Logger:   logger,
	})

	watcher, err := fswatch.New(logger)
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()
	for _, t := range targets {
		if err := watcher.AddRecursive(t.workspace()); err != nil {
			return fmt.Errorf("failed to watch %q: %w", t.workspace(), err)
		}
	}

	byRoot := make(map[string]*build.Builder, len(builders))
	for _, b := range builders {
		byRoot[b.Root()] = b
	}
	out := cmd.OutOrStdout()
	printer := &watchPrinter{out: out, errOut: cmd.ErrOrStderr(), color: colorOn, builders: builders}
	drainNotes(notes, printer.errOut)
	for _, b := range builders {
		printer.print(b)
	}
	fmt.Fprintln(out, "watching for changes, press ctrl+c to stop")

	var wg sync.WaitGroup
	feeds := make([]chan fswatch.Event, len(builders))
	for i, b := range builders {
		feeds[i] = make(chan fswatch.Event, 16)
		wg.Go(func() {
			if err := b.Watch(ctx, feeds[i]); err != nil {
				logger.Error("watch stopped", "root", b.Root(), "err", err)
			}
		})
	}
	wg.Go(func() {
		fanOut(ctx, watcher, feeds, logger)
	})

	for {
		select {
		case <-ctx.Done():
			for _, b := range builders {
				b.Close()
			}
			wg.Wait()
			return nil
		case msg := <-notes:
			if msg.critical != "" {
				fmt.Fprintln(printer.errOut, "critical:", msg.critical)
				continue
			}
			if msg.status == build.StatusSuccess {
				if b, ok := byRoot[msg.root]; ok {
					printer.print(b)
				}
			}
		}
	}
}

// drainNotes discards the status changes of the first runs, keeping only
// critical failures.
func drainNotes(notes chanNotifier, errOut io.Writer) {
	for {
		select {
		case msg := <-notes:
			if msg.critical != "" {
				fmt.Fprintln(errOut, "critical:", msg.critical)
			}
		default:
			return
		}
	}
}

// fanOut copies every watcher event to each feed and closes the feeds when
// the watcher or ctx stops.
func fanOut(ctx context.Context, w *fswatch.Watcher, feeds []chan fswatch.Event, logger *slog.Logger) {
	defer func() {
		for _, f := range feeds {
			close(f)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if ok {
				logger.Warn("watcher error", "err", err)
			}
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			for _, f := range feeds {
				select {
				case f <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

type watchPrinter struct {
	out      io.Writer
	errOut   io.Writer
	color    bool
	builders []*build.Builder
}

func (p *watchPrinter) print(b *build.Builder) {
	diags := b.Diagnostics()
	fmt.Fprintf(p.out, "[%s] %s\n", time.Now().Format(time.TimeOnly), b.Root())
	if err := diagfmt.Pretty(p.out, diags, diagfmt.SourceFunc(contentsOf(p.builders)), diagfmt.PrettyOpts{
		Color:   p.color,
		BaseDir: b.Root(),
	}); err != nil {
		fmt.Fprintln(p.errOut, "error:", err)
		return
	}
	_ = diagfmt.Summary(p.out, diags, p.color)
}
