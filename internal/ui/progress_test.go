package ui

import (
	"errors"
	"strings"
	"testing"

	"quill/internal/buildpipeline"
)

func TestProgressModelTracksWorkspaces(t *testing.T) {
	stages := []buildpipeline.Stage{buildpipeline.StageLoad, buildpipeline.StageValidate}
	m := NewProgressModel("build", []string{"/p/a", "/p/b"}, stages, nil).(*progressModel)

	m.applyEvent(buildpipeline.Event{Workspace: "/p/a", Stage: buildpipeline.StageLoad, Status: buildpipeline.StatusDone})
	if got := m.percent(); got != 0.25 {
		t.Fatalf("percent after one stage = %v, want 0.25", got)
	}
	m.applyEvent(buildpipeline.Event{Workspace: "/p/a", Stage: buildpipeline.StageValidate, Status: buildpipeline.StatusWorking})
	if m.items[0].status != "validating" {
		t.Fatalf("status = %q", m.items[0].status)
	}
	m.applyEvent(buildpipeline.Event{Workspace: "/p/a", Stage: buildpipeline.StageValidate, Status: buildpipeline.StatusDone})
	m.applyEvent(buildpipeline.Event{Workspace: "/p/b", Stage: buildpipeline.StageLoad, Status: buildpipeline.StatusError, Err: errors.New("boom")})
	if got := m.percent(); got != 1 {
		t.Fatalf("percent when every workspace finished = %v", got)
	}
	m.applyEvent(buildpipeline.Event{Workspace: "/elsewhere", Stage: buildpipeline.StageLoad, Status: buildpipeline.StatusDone})

	view := m.View()
	if !strings.Contains(view, "validated") || !strings.Contains(view, "error") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 6, "abc..."},
		{"abcdef", 2, "ab"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
