package project

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFindProjectRootWalksUp(t *testing.T) {
	root := CanonicalPath(t.TempDir())
	writeFile(t, filepath.Join(root, ManifestName), "")
	nested := filepath.Join(root, "source", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, ok, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	if !ok || got != root {
		t.Fatalf("expected root %q, got %q (ok=%v)", root, got, ok)
	}
}

func TestFindManifestMissing(t *testing.T) {
	dir := t.TempDir()
	// The temp dir lives under the system temp root, which carries no manifest.
	if _, ok, err := FindManifest(dir); err != nil || ok {
		t.Fatalf("expected no manifest, got ok=%v err=%v", ok, err)
	}
}

func TestDiscoverRootsSkipsHiddenAndOutput(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "app", ManifestName), "")
	writeFile(t, filepath.Join(base, "libs", "core", ManifestName), "")
	writeFile(t, filepath.Join(base, ".git", ManifestName), "")
	writeFile(t, filepath.Join(base, "app", "out", ManifestName), "")

	roots, err := DiscoverRoots(base)
	if err != nil {
		t.Fatalf("DiscoverRoots: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %v", roots)
	}
	want := map[string]bool{
		filepath.Join(base, "app"):          true,
		filepath.Join(base, "libs", "core"): true,
	}
	for _, r := range roots {
		if !want[r] {
			t.Fatalf("unexpected root %q", r)
		}
	}
}

func TestPathWithin(t *testing.T) {
	cases := []struct {
		root, path string
		want       bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c.ql", true},
		{"/a/b", "/a/bc/d.ql", false},
		{"/a/b", "/a", false},
		{"/a/b", "/a/b/..data/x", true},
		{"", "/a", false},
	}
	for _, tc := range cases {
		if got := PathWithin(tc.root, tc.path); got != tc.want {
			t.Errorf("PathWithin(%q, %q) = %v, want %v", tc.root, tc.path, got, tc.want)
		}
	}
}
