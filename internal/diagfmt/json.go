package diagfmt

import (
	"encoding/json"
	"io"

	"fortio.org/safecast"

	"quill/internal/diag"
)

// LocationJSON is a 1-based source location.
type LocationJSON struct {
	File      string `json:"file"`
	StartLine uint32 `json:"start_line"`
	StartCol  uint32 `json:"start_col"`
	EndLine   uint32 `json:"end_line"`
	EndCol    uint32 `json:"end_col"`
}

// DiagnosticJSON is one diagnostic in JSON output.
type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Code     string       `json:"code"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// DiagnosticsOutput is the root of JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Errors      int              `json:"errors"`
}

func oneBased(n int) uint32 {
	v, err := safecast.Conv[uint32](n + 1)
	if err != nil {
		return 1
	}
	return v
}

func makeLocation(d diag.Diagnostic, opts JSONOpts) LocationJSON {
	return LocationJSON{
		File:      formatPath(d.FilePath, opts.PathMode, opts.BaseDir),
		StartLine: oneBased(d.Range.StartLine),
		StartCol:  oneBased(d.Range.StartCol),
		EndLine:   oneBased(d.Range.EndLine),
		EndCol:    oneBased(d.Range.EndCol),
	}
}

// BuildDiagnosticsOutput builds the JSON document without encoding it.
// Errors counts every error, including those cut off by Max.
func BuildDiagnosticsOutput(diags []diag.Diagnostic, opts JSONOpts) DiagnosticsOutput {
	n := len(diags)
	if opts.Max > 0 && opts.Max < n {
		n = opts.Max
	}
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, n)}
	for i, d := range diags {
		if d.Severity == diag.SevError {
			out.Errors++
		}
		if i >= n {
			continue
		}
		out.Diagnostics = append(out.Diagnostics, DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.String(),
			Title:    d.Code.Title(),
			Message:  d.Message,
			Location: makeLocation(d, opts),
		})
	}
	out.Count = len(out.Diagnostics)
	return out
}

// JSON writes diagnostics as an indented JSON document.
func JSON(w io.Writer, diags []diag.Diagnostic, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(diags, opts))
}
