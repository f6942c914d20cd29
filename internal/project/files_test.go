package project

import "testing"

func TestDestPath(t *testing.T) {
	root := "/work/app"
	cases := []struct {
		name    string
		entries []FileEntry
		src     string
		want    string
	}{
		{
			name:    "default source glob",
			entries: DefaultFiles,
			src:     "/work/app/source/main.ql",
			want:    "source/main.ql",
		},
		{
			name:    "default manifest",
			entries: DefaultFiles,
			src:     "/work/app/manifest",
			want:    "manifest",
		},
		{
			name:    "not included",
			entries: DefaultFiles,
			src:     "/work/app/docs/readme.md",
			want:    "",
		},
		{
			name:    "outside root",
			entries: DefaultFiles,
			src:     "/elsewhere/source/main.ql",
			want:    "",
		},
		{
			name: "negation removes earlier match",
			entries: []FileEntry{
				{Src: []string{"source/**/*"}},
				{Src: []string{"!source/**/*.spec.ql"}},
			},
			src:  "/work/app/source/util.spec.ql",
			want: "",
		},
		{
			name:    "dest relocates relative to glob base",
			entries: []FileEntry{{Src: []string{"lib/**/*.ql"}, Dest: "source/lib"}},
			src:     "/work/app/lib/net/http.ql",
			want:    "source/lib/net/http.ql",
		},
		{
			name:    "absolute src outside root",
			entries: []FileEntry{{Src: []string{"/shared/common/**/*.ql"}, Dest: "source/common"}},
			src:     "/shared/common/a/b.ql",
			want:    "source/common/a/b.ql",
		},
		{
			name:    "escaped single file",
			entries: []FileEntry{{Src: []string{EscapeGlob("odd[1].ql")}}},
			src:     "/work/app/odd[1].ql",
			want:    "odd[1].ql",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DestPath(tc.entries, root, tc.src, nil); got != tc.want {
				t.Fatalf("DestPath(%q) = %q, want %q", tc.src, got, tc.want)
			}
		})
	}
}

type countingMatcher struct {
	calls int
}

func (m *countingMatcher) Match(pattern, path string) bool {
	m.calls++
	return GlobMatcher{}.Match(pattern, path)
}

func TestDestPathUsesInjectedMatcher(t *testing.T) {
	m := &countingMatcher{}
	if got := DestPath(DefaultFiles, "/r", "/r/manifest", m); got != "manifest" {
		t.Fatalf("unexpected dest %q", got)
	}
	if m.calls != len(DefaultFiles) {
		t.Fatalf("expected %d matcher calls, got %d", len(DefaultFiles), m.calls)
	}
}
