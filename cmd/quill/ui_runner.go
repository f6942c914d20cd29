package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"quill/internal/build"
	"quill/internal/buildpipeline"
	"quill/internal/ui"
)

// startAllWithUI is startAll with a progress view on stdout. The view
// closes once every builder finished its first run.
func startAllWithUI(ctx context.Context, title string, targets []target, base build.Options, stages []buildpipeline.Stage) ([]*build.Builder, error) {
	events := make(chan buildpipeline.Event, 256)
	done := make(chan []*build.Builder, 1)

	go func() {
		opts := base
		opts.Progress = buildpipeline.Multi(base.Progress, buildpipeline.ChannelSink{Ch: events})
		done <- startAll(ctx, targets, opts)
		close(events)
	}()

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.workspace()
	}
	model := ui.NewProgressModel(title, names, stages, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// the view may quit early on ctrl+c
	go func() {
		for range events {
		}
	}()
	builders := <-done
	return builders, uiErr
}
