package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"quill/internal/diag"
)

const tabWidth = 4

// Pretty writes each diagnostic as
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//
// followed by the source line with a ^~~~ underline when src has the file.
// Lines and columns are shown 1-based.
func Pretty(w io.Writer, diags []diag.Diagnostic, src Source, opts PrettyOpts) error {
	for _, d := range diags {
		if err := prettyOne(w, d, src, opts); err != nil {
			return err
		}
	}
	return nil
}

func prettyOne(w io.Writer, d diag.Diagnostic, src Source, opts PrettyOpts) error {
	path := formatPath(d.FilePath, opts.PathMode, opts.BaseDir)
	header := fmt.Sprintf("%s:%d:%d: %s %s: %s\n",
		paint(opts.Color, path, color.Bold),
		d.Range.StartLine+1, d.Range.StartCol+1,
		paint(opts.Color, d.Severity.String(), severityAttrs(d.Severity)...),
		d.Code, d.Message)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if src == nil {
		return nil
	}
	text, ok := src.Contents(d.FilePath)
	if !ok {
		return nil
	}
	lines := strings.Split(text, "\n")
	if d.Range.StartLine < 0 || d.Range.StartLine >= len(lines) {
		return nil
	}

	first := max(d.Range.StartLine-max(opts.Context, 0), 0)
	gutter := len(strconv.Itoa(d.Range.StartLine + 1))
	var b strings.Builder
	for n := first; n <= d.Range.StartLine; n++ {
		line := expandTabs(strings.TrimRight(lines[n], "\r"))
		if opts.Width > 0 && runewidth.StringWidth(line) > opts.Width {
			line = runewidth.Truncate(line, opts.Width, "…")
		}
		fmt.Fprintf(&b, " %*d | %s\n", gutter, n+1, line)
	}

	raw := strings.TrimRight(lines[d.Range.StartLine], "\r")
	start := clamp(d.Range.StartCol, len(raw))
	end := len(raw)
	if d.Range.EndLine == d.Range.StartLine {
		end = clamp(d.Range.EndCol, len(raw))
	}
	pad := runewidth.StringWidth(expandTabs(raw[:start]))
	span := max(runewidth.StringWidth(expandTabs(raw[start:max(end, start)])), 1)
	marker := "^" + strings.Repeat("~", span-1)
	fmt.Fprintf(&b, " %s | %s%s\n", strings.Repeat(" ", gutter), strings.Repeat(" ", pad),
		paint(opts.Color, marker, severityAttrs(d.Severity)...))
	_, err := io.WriteString(w, b.String())
	return err
}

// Summary writes a one-line count of errors and warnings.
func Summary(w io.Writer, diags []diag.Diagnostic, useColor bool) error {
	var errs, warns int
	for _, d := range diags {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
	}
	var line string
	switch {
	case errs == 0 && warns == 0:
		line = paint(useColor, "no problems found", color.FgGreen)
	default:
		line = fmt.Sprintf("%s, %s", plural(errs, "error"), plural(warns, "warning"))
		if errs > 0 {
			line = paint(useColor, line, color.FgRed, color.Bold)
		}
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

func severityAttrs(sev diag.Severity) []color.Attribute {
	switch sev {
	case diag.SevError:
		return []color.Attribute{color.FgRed, color.Bold}
	case diag.SevWarning:
		return []color.Attribute{color.FgYellow, color.Bold}
	case diag.SevInfo:
		return []color.Attribute{color.FgCyan}
	default:
		return []color.Attribute{color.FgHiBlack}
	}
}

func paint(on bool, s string, attrs ...color.Attribute) string {
	if !on {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

func clamp(n, hi int) int {
	return min(max(n, 0), hi)
}
