package diag

import "fmt"

// Range is a zero-based, end-exclusive span of text.
type Range struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.StartLine, r.StartCol, r.EndLine, r.EndCol)
}

// Diagnostic is a single finding attached to an absolute file path.
type Diagnostic struct {
	FilePath string   `json:"file"`
	Range    Range    `json:"range"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Source   string   `json:"source,omitempty"`
}

// New builds a diagnostic with the given severity.
func New(sev Severity, code Code, path string, rng Range, msg string) Diagnostic {
	return Diagnostic{
		FilePath: path,
		Range:    rng,
		Code:     code,
		Message:  msg,
		Severity: sev,
		Source:   "quill",
	}
}

// Errorf is a shortcut for SevError diagnostics.
func Errorf(code Code, path string, rng Range, format string, args ...any) Diagnostic {
	return New(SevError, code, path, rng, fmt.Sprintf(format, args...))
}

// Warningf is a shortcut for SevWarning diagnostics.
func Warningf(code Code, path string, rng Range, format string, args ...any) Diagnostic {
	return New(SevWarning, code, path, rng, fmt.Sprintf(format, args...))
}

// Infof is a shortcut for SevInfo diagnostics.
func Infof(code Code, path string, rng Range, format string, args ...any) Diagnostic {
	return New(SevInfo, code, path, rng, fmt.Sprintf(format, args...))
}
