package lsp

import (
	"path/filepath"
	"testing"
)

func TestApplyChanges(t *testing.T) {
	rng := func(l1, c1, l2, c2 uint32) *lspRange {
		return &lspRange{Start: position{Line: l1, Character: c1}, End: position{Line: l2, Character: c2}}
	}
	tests := []struct {
		name    string
		text    string
		changes []textDocumentContentChangeEvent
		want    string
	}{
		{"full replace", "old", []textDocumentContentChangeEvent{{Text: "new"}}, "new"},
		{"insert", "ab\ncd", []textDocumentContentChangeEvent{{Range: rng(1, 1, 1, 1), Text: "X"}}, "ab\ncXd"},
		{"delete across lines", "ab\ncd", []textDocumentContentChangeEvent{{Range: rng(0, 1, 1, 1), Text: ""}}, "ad"},
		{"surrogate pair", "😀x", []textDocumentContentChangeEvent{{Range: rng(0, 2, 0, 3), Text: "y"}}, "😀y"},
		{"past end clamps", "ab", []textDocumentContentChangeEvent{{Range: rng(5, 0, 9, 0), Text: "!"}}, "ab!"},
		{"column past line end", "ab\ncd", []textDocumentContentChangeEvent{{Range: rng(0, 10, 0, 10), Text: "!"}}, "ab!\ncd"},
		{"in order", "a", []textDocumentContentChangeEvent{
			{Range: rng(0, 1, 0, 1), Text: "b"},
			{Range: rng(0, 0, 0, 1), Text: "c"},
		}, "cb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyChanges(tt.text, tt.changes); got != tt.want {
				t.Fatalf("applyChanges = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "a.ql")
	if got := uriToPath(pathToURI(path)); got != path {
		t.Fatalf("uriToPath(pathToURI(%q)) = %q", path, got)
	}
	if got := uriToPath("untitled:Untitled-1"); got != "" {
		t.Fatalf("non-file scheme should be ignored, got %q", got)
	}
}

func TestToUint32ClampsNegatives(t *testing.T) {
	if got := toUint32(-3); got != 0 {
		t.Fatalf("toUint32(-3) = %d", got)
	}
	if got := toUint32(42); got != 42 {
		t.Fatalf("toUint32(42) = %d", got)
	}
}
