package diagfmt

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/diag"
)

func sampleDiag(path string) diag.Diagnostic {
	return diag.Errorf(diag.UnresolvedImport, path,
		diag.Range{StartLine: 1, StartCol: 7, EndLine: 1, EndCol: 13},
		"cannot find imported file %q", "x.ql")
}

func TestPrettyUnderlinesRange(t *testing.T) {
	path := filepath.Join("/proj", "source", "main.ql")
	src := SourceFunc(func(p string) (string, bool) {
		if p != path {
			return "", false
		}
		return "// header\nimport \"x.ql\"\n", true
	})

	var buf bytes.Buffer
	err := Pretty(&buf, []diag.Diagnostic{sampleDiag(path)}, src, PrettyOpts{Context: 1, BaseDir: "/proj"})
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	want := strings.Join([]string{
		filepath.Join("source", "main.ql") + `:2:8: ERROR 1004: cannot find imported file "x.ql"`,
		" 1 | // header",
		` 2 | import "x.ql"`,
		"   |        ^~~~~~",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrettyWithoutSource(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, []diag.Diagnostic{sampleDiag("/a/b.ql")}, nil, PrettyOpts{PathMode: PathModeBasename}); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if got := buf.String(); !strings.HasPrefix(got, "b.ql:2:8: ERROR 1004") || strings.Count(got, "\n") != 1 {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestPrettyTabsAndWideRunes(t *testing.T) {
	src := SourceFunc(func(string) (string, bool) { return "\t漢字 bad", true })
	d := diag.Warningf(diag.MixedIndentation, "/f.ql", diag.Range{StartCol: 8, EndCol: 11}, "w")
	var buf bytes.Buffer
	if err := Pretty(&buf, []diag.Diagnostic{d}, src, PrettyOpts{}); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	// tab (4) + two wide runes (4) + space (1)
	if want := "   | " + strings.Repeat(" ", 9) + "^~~"; lines[2] != want {
		t.Fatalf("marker line = %q, want %q", lines[2], want)
	}
}

func TestFormatPath(t *testing.T) {
	base := filepath.Join("/home", "me", "proj")
	inside := filepath.Join(base, "lib", "a.ql")
	outside := filepath.Join("/tmp", "b.ql")
	tests := []struct {
		mode PathMode
		path string
		want string
	}{
		{PathModeAuto, inside, filepath.Join("lib", "a.ql")},
		{PathModeAuto, outside, outside},
		{PathModeAbsolute, inside, inside},
		{PathModeRelative, outside, filepath.Join("..", "..", "..", "tmp", "b.ql")},
		{PathModeBasename, inside, "a.ql"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path, tt.mode, base); got != tt.want {
			t.Fatalf("formatPath(%q, %d) = %q, want %q", tt.path, tt.mode, got, tt.want)
		}
	}
}

func TestJSONOutput(t *testing.T) {
	diags := []diag.Diagnostic{
		sampleDiag("/p/a.ql"),
		diag.Warningf(diag.FileNotReferenced, "/p/b.ql", diag.Range{}, "unused"),
		sampleDiag("/p/c.ql"),
	}
	var buf bytes.Buffer
	if err := JSON(&buf, diags, JSONOpts{Max: 2, PathMode: PathModeBasename}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || out.Errors != 2 || len(out.Diagnostics) != 2 {
		t.Fatalf("unexpected counts %+v", out)
	}
	first := out.Diagnostics[0]
	if first.Code != "1004" || first.Severity != "ERROR" || first.Location.File != "a.ql" ||
		first.Location.StartLine != 2 || first.Location.StartCol != 8 {
		t.Fatalf("unexpected first diagnostic %+v", first)
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	_ = Summary(&buf, nil, false)
	_ = Summary(&buf, []diag.Diagnostic{sampleDiag("/a"), sampleDiag("/b")}, false)
	if got := buf.String(); got != "no problems found\n2 errors, 0 warnings\n" {
		t.Fatalf("Summary = %q", got)
	}
}

func TestParsePathMode(t *testing.T) {
	if ParsePathMode("REL") != PathModeRelative || ParsePathMode("nope") != PathModeAuto {
		t.Fatalf("unexpected path mode parsing")
	}
}
