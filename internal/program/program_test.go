package program

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quill/internal/diag"
)

func codesOf(diags []diag.Diagnostic) []diag.Code {
	out := make([]diag.Code, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func hasCode(diags []diag.Diagnostic, file string, code diag.Code) bool {
	for _, d := range diags {
		if d.FilePath == file && d.Code == code {
			return true
		}
	}
	return false
}

func TestValidateReportsPerFileChecks(t *testing.T) {
	p := New(Options{MaxLineWidth: 20})
	p.SetFile(FileRef{Src: "/r/source/main.ql", Dest: "source/main.ql"}, strings.Join([]string{
		`import "util.ql"`,
		"\t  mixed()",
		strings.Repeat("x", 25),
	}, "\n"))
	p.SetFile(FileRef{Src: "/r/source/bad.ql", Dest: "source/bad.ql"}, "ok\xff")

	if err := p.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := p.Diagnostics()
	for _, want := range []struct {
		file string
		code diag.Code
	}{
		{"/r/source/main.ql", diag.UnresolvedImport},
		{"/r/source/main.ql", diag.MixedIndentation},
		{"/r/source/main.ql", diag.LineTooLong},
		{"/r/source/bad.ql", diag.InvalidEncoding},
	} {
		if !hasCode(got, want.file, want.code) {
			t.Fatalf("missing %s on %s; got %v", want.code, want.file, codesOf(got))
		}
	}
	if hasCode(got, "/r/source/main.ql", diag.FileNotReferenced) {
		t.Fatalf("files under source/ are implicitly referenced")
	}
}

func TestValidateUnreferencedFiles(t *testing.T) {
	p := New(Options{})
	p.SetFile(FileRef{Src: "/r/source/main.ql", Dest: "source/main.ql"}, `import "pkg:/lib/used.ql"`)
	p.SetFile(FileRef{Src: "/r/lib/used.ql", Dest: "lib/used.ql"}, "x")
	p.SetFile(FileRef{Src: "/r/lib/orphan.ql", Dest: "lib/orphan.ql"}, "x")
	p.SetFile(FileRef{Src: "/r/manifest", Dest: "manifest"}, "title=x")

	if err := p.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := p.Diagnostics()
	if !hasCode(got, "/r/lib/orphan.ql", diag.FileNotReferenced) {
		t.Fatalf("expected orphan to be unreferenced, got %v", got)
	}
	if hasCode(got, "/r/lib/used.ql", diag.FileNotReferenced) {
		t.Fatalf("used.ql is imported")
	}
	if hasCode(got, "/r/manifest", diag.FileNotReferenced) {
		t.Fatalf("non-source files are never checked")
	}

	single := New(Options{SkipUnreferenced: true})
	single.SetFile(FileRef{Src: "/r/lib/orphan.ql", Dest: "orphan.ql"}, "x")
	if err := single.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if n := len(single.Diagnostics()); n != 0 {
		t.Fatalf("expected no diagnostics for a single file program, got %d", n)
	}
}

func TestValidateTracksMutations(t *testing.T) {
	p := New(Options{})
	ref := FileRef{Src: "/r/source/a.ql", Dest: "source/a.ql"}
	p.SetFile(ref, `import "missing.ql"`)
	if err := p.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(p.Diagnostics()) != 1 {
		t.Fatalf("expected one diagnostic, got %v", p.Diagnostics())
	}

	p.SetFile(FileRef{Src: "/r/source/missing.ql", Dest: "source/missing.ql"}, "")
	if err := p.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if n := len(p.Diagnostics()); n != 0 {
		t.Fatalf("import resolved, expected 0 diagnostics, got %d", n)
	}

	p.RemoveFile("/r/source/missing.ql")
	if p.HasFile("/r/source/missing.ql") {
		t.Fatalf("RemoveFile left the file loaded")
	}
	if err := p.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasCode(p.Diagnostics(), ref.Src, diag.UnresolvedImport) {
		t.Fatalf("expected the import to break again")
	}
}

func TestValidateHonorsCanceledContext(t *testing.T) {
	p := New(Options{})
	p.SetFile(FileRef{Src: "/r/source/a.ql", Dest: "source/a.ql"}, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Validate(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFilesAndContents(t *testing.T) {
	p := New(Options{})
	p.SetFile(FileRef{Src: "/r/b", Dest: "b"}, "two")
	p.SetFile(FileRef{Src: "/r/a", Dest: "a"}, "one")
	files := p.Files()
	if len(files) != 2 || files[0].Src != "/r/a" || files[1].Src != "/r/b" {
		t.Fatalf("unexpected files %v", files)
	}
	if got, ok := p.Contents("/r/b"); !ok || got != "two" {
		t.Fatalf("Contents = %q, %v", got, ok)
	}
	if _, ok := p.Contents("/r/c"); ok {
		t.Fatalf("expected unknown file")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		importer, target, want string
	}{
		{"source/main.ql", "util.ql", "source/util.ql"},
		{"source/main.ql", "../lib/x.ql", "lib/x.ql"},
		{"source/deep/main.ql", "pkg:/source/x.ql", "source/x.ql"},
	}
	for _, tt := range tests {
		if got := Resolve(tt.importer, tt.target); got != tt.want {
			t.Fatalf("Resolve(%q, %q) = %q, want %q", tt.importer, tt.target, got, tt.want)
		}
	}
}

func TestParseImport(t *testing.T) {
	tests := []struct {
		line   string
		target string
		col    int
		ok     bool
	}{
		{`import "a.ql"`, "a.ql", 7, true},
		{`  import  "b.ql" // x`, "b.ql", 10, true},
		{`imports "a.ql"`, "", 0, false},
		{`import a.ql`, "", 0, false},
		{`import "open`, "", 0, false},
	}
	for _, tt := range tests {
		target, col, ok := parseImport(tt.line)
		if target != tt.target || col != tt.col || ok != tt.ok {
			t.Fatalf("parseImport(%q) = %q, %d, %v", tt.line, target, col, ok)
		}
	}
}
