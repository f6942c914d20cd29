package diag

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"quill/internal/project"
)

func d(path string, code Code, line int, msg string) Diagnostic {
	return Errorf(code, path, Range{StartLine: line, EndLine: line, EndCol: 1}, "%s", msg)
}

func TestGetRulesNormalizesInput(t *testing.T) {
	root := filepath.FromSlash("/proj")
	cfg := FilterConfig{
		RootDir: root,
		DiagnosticFilters: []any{
			int64(1001),
			"1002",
			"Generated/**/*",
			map[string]any{"src": "vendor/**/*", "codes": []any{int64(1013), "1004"}},
			map[string]any{"codes": []any{float64(1003)}},
			nil,
			true,
			false,
			map[string]any{},
		},
		IgnoreErrorCodes: []any{int64(7), "8"},
	}

	rules := GetRules(cfg)
	if len(rules) != 6 {
		t.Fatalf("expected 6 rules, got %d: %+v", len(rules), rules)
	}
	if rules[0].Src != "" || !rules[0].Suppresses("1001") {
		t.Fatalf("expected global code rule, got %+v", rules[0])
	}
	if rules[1].Src != "" || !rules[1].Suppresses(NumericCode(1002)) {
		t.Fatalf("expected numeric string to be a code, got %+v", rules[1])
	}
	wantGlob := strings.ToLower(filepath.ToSlash(filepath.Join(root, "Generated/**/*")))
	if rules[2].Src != wantGlob || rules[2].Codes != nil {
		t.Fatalf("expected lower-cased glob rule %q, got %+v", wantGlob, rules[2])
	}
	if !rules[3].Suppresses("1013") || !rules[3].Suppresses("1004") || rules[3].Suppresses("1001") {
		t.Fatalf("unexpected code list %+v", rules[3])
	}
	if rules[4].Src != "" || !rules[4].Suppresses("1003") {
		t.Fatalf("expected codes-only table to be global, got %+v", rules[4])
	}
	if last := rules[5]; last.Src != "" || !last.Suppresses("7") || !last.Suppresses("8") {
		t.Fatalf("expected ignore codes folded last, got %+v", last)
	}
}

func TestFilterDedupsIdenticalDiagnostics(t *testing.T) {
	one := d("/p/a.ql", "1001", 1, "bad")
	got := NewFilterer(nil).Filter(FilterConfig{}, []Diagnostic{one, one})
	if len(got) != 1 {
		t.Fatalf("expected one diagnostic, got %d", len(got))
	}
}

func TestFilterRules(t *testing.T) {
	root := filepath.FromSlash("/proj")
	diags := []Diagnostic{
		d(filepath.Join(root, "source/main.ql"), "1001", 1, "keep"),
		d(filepath.Join(root, "source/main.ql"), "1013", 2, "global drop"),
		d(filepath.Join(root, "vendor/x.ql"), "1004", 1, "vendor code drop"),
		d(filepath.Join(root, "vendor/x.ql"), "1001", 2, "vendor keep"),
		d(filepath.Join(root, "generated/y.ql"), "1001", 3, "generated drop"),
	}
	cfg := FilterConfig{
		RootDir: root,
		DiagnosticFilters: []any{
			"generated/**/*",
			map[string]any{"src": "vendor/**/*", "codes": []any{int64(1004)}},
		},
		IgnoreErrorCodes: []any{int64(1013)},
	}

	got := NewFilterer(nil).Filter(cfg, diags)
	var msgs []string
	for _, x := range got {
		msgs = append(msgs, x.Message)
	}
	want := []string{"keep", "vendor keep"}
	if !reflect.DeepEqual(msgs, want) {
		t.Fatalf("expected %v, got %v", want, msgs)
	}

	again := NewFilterer(nil).Filter(cfg, got)
	if !reflect.DeepEqual(again, got) {
		t.Fatalf("filtering twice changed the result: %v vs %v", again, got)
	}
}

type countingMatcher struct {
	calls int
}

func (m *countingMatcher) Match(pattern, path string) bool {
	m.calls++
	return project.GlobMatcher{}.Match(pattern, path)
}

func TestFilterMemoizesPerLowerCasedPath(t *testing.T) {
	root := filepath.FromSlash("/proj")
	diags := []Diagnostic{
		d(filepath.Join(root, "source/A.ql"), "1001", 1, "one"),
		d(filepath.Join(root, "source/a.ql"), "1001", 2, "two"),
		d(filepath.Join(root, "source/B.ql"), "1001", 3, "three"),
		d(filepath.Join(root, "SOURCE/b.ql"), "1001", 4, "four"),
	}
	m := &countingMatcher{}
	cfg := FilterConfig{RootDir: root, DiagnosticFilters: []any{"source/a.ql"}}

	got := NewFilterer(m).Filter(cfg, diags)
	if m.calls != 2 {
		t.Fatalf("expected 2 glob evaluations, got %d", m.calls)
	}
	if len(got) != 2 || got[0].Message != "three" || got[1].Message != "four" {
		t.Fatalf("expected both a.ql spellings dropped, got %+v", got)
	}
}
