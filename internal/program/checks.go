package program

import (
	"strings"
	"unicode/utf8"

	"quill/internal/diag"
)

// checkFile runs the per-file checks and returns the diagnostics plus the
// dest paths the file imports.
func (p *Program) checkFile(f *file, byDest map[string]*file) ([]diag.Diagnostic, []string) {
	src := f.ref.Src
	if !utf8.ValidString(f.contents) {
		return []diag.Diagnostic{
			diag.Errorf(diag.InvalidEncoding, src, diag.Range{}, "file is not valid UTF-8"),
		}, nil
	}

	var (
		out     []diag.Diagnostic
		imports []string
	)
	lines := strings.Split(f.contents, "\n")
	for n, line := range lines {
		line = strings.TrimSuffix(line, "\r")

		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if strings.Contains(indent, " ") && strings.Contains(indent, "\t") {
			out = append(out, diag.Warningf(diag.MixedIndentation, src,
				diag.Range{StartLine: n, EndLine: n, EndCol: len(indent)},
				"indentation mixes tabs and spaces"))
		}

		if width := utf8.RuneCountInString(line); width > p.opts.MaxLineWidth {
			out = append(out, diag.Infof(diag.LineTooLong, src,
				diag.Range{StartLine: n, StartCol: p.opts.MaxLineWidth, EndLine: n, EndCol: width},
				"line is %d characters long (limit %d)", width, p.opts.MaxLineWidth))
		}

		target, col, ok := parseImport(line)
		if !ok {
			continue
		}
		dest := Resolve(f.ref.Dest, target)
		imports = append(imports, dest)
		if _, found := byDest[dest]; !found {
			out = append(out, diag.Errorf(diag.UnresolvedImport, src,
				diag.Range{StartLine: n, StartCol: col, EndLine: n, EndCol: col + len(target) + 2},
				"cannot find imported file %q", target))
		}
	}
	return out, imports
}

// parseImport recognizes `import "path"` and returns the path and the column
// of its opening quote.
func parseImport(line string) (string, int, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	rest, ok := strings.CutPrefix(trimmed, "import")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", 0, false
	}
	rest = strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(rest, `"`) {
		return "", 0, false
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", 0, false
	}
	col := len(line) - len(rest)
	return rest[1 : end+1], col, true
}
