package main

import (
	"os"
	"testing"
)

func TestParseUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"AUTO", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := parseUIMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseUIMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseUIMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUIModeEnabled(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}
	// a regular file is never a terminal
	out, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { _ = out.Close() })

	tests := []struct {
		name string
		mode uiMode
		env  map[string]string
		want bool
	}{
		{"on wins in CI", uiModeOn, map[string]string{"CI": "1"}, true},
		{"off", uiModeOff, nil, false},
		{"auto in CI", uiModeAuto, map[string]string{"CI": "true"}, false},
		{"auto dumb term", uiModeAuto, map[string]string{"TERM": "dumb"}, false},
		{"auto not a terminal", uiModeAuto, nil, false},
	}
	for _, tt := range tests {
		if got := tt.mode.enabled(out, env(tt.env)); got != tt.want {
			t.Fatalf("%s: enabled = %v, want %v", tt.name, got, tt.want)
		}
	}
}
