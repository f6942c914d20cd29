package diag

import (
	"strconv"
	"strings"
)

// Code identifies a diagnostic class. Numeric codes are stored in decimal.
type Code string

const (
	// UnknownCode is used when a producer did not assign a code.
	UnknownCode Code = "0"

	// InvalidEncoding reports a file that is not valid UTF-8.
	InvalidEncoding Code = "1001"
	// MixedIndentation reports a line indented with both tabs and spaces.
	MixedIndentation Code = "1002"
	// LineTooLong reports a line wider than the configured limit.
	LineTooLong Code = "1003"
	// UnresolvedImport reports an import of a file the program does not have.
	UnresolvedImport Code = "1004"
	// FileNotReferenced reports a file no other file imports.
	FileNotReferenced Code = "1013"
	// ConfigInvalid reports a problem found while loading quill.toml.
	ConfigInvalid Code = "1020"
	// FileLoadFailed reports a file that could not be read into the program.
	FileLoadFailed Code = "1021"
)

var codeTitles = map[Code]string{
	UnknownCode:       "unknown diagnostic",
	InvalidEncoding:   "file is not valid UTF-8",
	MixedIndentation:  "mixed tab and space indentation",
	LineTooLong:       "line too long",
	UnresolvedImport:  "import cannot be resolved",
	FileNotReferenced: "file is not referenced by any other file",
	ConfigInvalid:     "invalid project configuration",
	FileLoadFailed:    "file could not be loaded",
}

// NumericCode returns the Code for an integer code.
func NumericCode(n int) Code {
	return Code(strconv.Itoa(n))
}

// ParseCode normalizes a user supplied code (int, float or string). The
// second result is false for values that cannot name a code.
func ParseCode(v any) (Code, bool) {
	switch c := v.(type) {
	case Code:
		return c, c != ""
	case int:
		return NumericCode(c), true
	case int64:
		return Code(strconv.FormatInt(c, 10)), true
	case float64:
		if c != float64(int64(c)) {
			return "", false
		}
		return Code(strconv.FormatInt(int64(c), 10)), true
	case string:
		s := strings.TrimSpace(c)
		if s == "" {
			return "", false
		}
		return Code(s), true
	}
	return "", false
}

// IsNumeric reports whether s spells an integer code.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// Title returns a short description of the code.
func (c Code) Title() string {
	if desc, ok := codeTitles[c]; ok {
		return desc
	}
	return codeTitles[UnknownCode]
}

func (c Code) String() string {
	return string(c)
}
