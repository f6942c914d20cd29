package diag

import (
	"path/filepath"
	"strings"

	"quill/internal/project"
)

// FilterConfig is the raw, user supplied filter configuration of a project.
// DiagnosticFilters and IgnoreErrorCodes hold whatever the manifest or the
// client settings decoded into: numbers, strings, tables, or junk.
type FilterConfig struct {
	RootDir           string
	DiagnosticFilters []any
	IgnoreErrorCodes  []any
}

// Rule suppresses diagnostics. An empty Src applies to every file. A nil
// Codes set suppresses every diagnostic in files matching Src.
type Rule struct {
	Src   string
	Codes map[Code]struct{}
}

// Suppresses reports whether the rule lists code. Rules without a code list
// suppress everything.
func (r Rule) Suppresses(code Code) bool {
	if r.Codes == nil {
		return true
	}
	_, ok := r.Codes[code]
	return ok
}

// GetRules normalizes user filter input into rules.
func GetRules(cfg FilterConfig) []Rule {
	rules := make([]Rule, 0, len(cfg.DiagnosticFilters)+1)
	for _, entry := range cfg.DiagnosticFilters {
		rule, ok := ruleFrom(entry)
		if !ok {
			continue
		}
		if rule.Src != "" {
			rule.Src = resolveGlob(cfg.RootDir, rule.Src)
		}
		rules = append(rules, rule)
	}
	if len(cfg.IgnoreErrorCodes) > 0 {
		codes := codeSet(cfg.IgnoreErrorCodes)
		if len(codes) > 0 {
			rules = append(rules, Rule{Codes: codes})
		}
	}
	return rules
}

func ruleFrom(entry any) (Rule, bool) {
	switch v := entry.(type) {
	case nil, bool:
		return Rule{}, false
	case int, int64, float64:
		code, ok := ParseCode(v)
		if !ok {
			return Rule{}, false
		}
		return Rule{Codes: map[Code]struct{}{code: {}}}, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Rule{}, false
		}
		if IsNumeric(s) {
			return Rule{Codes: map[Code]struct{}{Code(s): {}}}, true
		}
		return Rule{Src: s}, true
	case map[string]any:
		var rule Rule
		if src, ok := v["src"].(string); ok {
			rule.Src = strings.TrimSpace(src)
		}
		if raw, ok := v["codes"]; ok && raw != nil {
			rule.Codes = codeSet(toList(raw))
		}
		if rule.Src == "" && rule.Codes == nil {
			return Rule{}, false
		}
		return rule, true
	}
	return Rule{}, false
}

func toList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []int64:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	default:
		return []any{v}
	}
}

func codeSet(values []any) map[Code]struct{} {
	set := make(map[Code]struct{}, len(values))
	for _, v := range values {
		if code, ok := ParseCode(v); ok {
			set[code] = struct{}{}
		}
	}
	return set
}

func resolveGlob(root, glob string) string {
	if !filepath.IsAbs(glob) && root != "" {
		glob = filepath.Join(root, glob)
	}
	return strings.ToLower(filepath.ToSlash(glob))
}

// Filterer removes diagnostics suppressed by user rules.
type Filterer struct {
	matcher project.Matcher
}

// NewFilterer returns a Filterer using m for glob tests; nil selects
// project.GlobMatcher.
func NewFilterer(m project.Matcher) *Filterer {
	if m == nil {
		m = project.GlobMatcher{}
	}
	return &Filterer{matcher: m}
}

type fileVerdict struct {
	all   bool
	codes map[Code]struct{}
}

// Filter drops duplicates and every diagnostic a rule of cfg suppresses.
// Surviving diagnostics keep their relative order.
func (f *Filterer) Filter(cfg FilterConfig, diags []Diagnostic) []Diagnostic {
	diags = Dedup(diags)
	rules := GetRules(cfg)
	if len(rules) == 0 {
		return diags
	}

	global := make(map[Code]struct{})
	globRules := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Src != "" {
			globRules = append(globRules, r)
			continue
		}
		for code := range r.Codes {
			global[code] = struct{}{}
		}
	}

	// Watchers may report the same file with varying case.
	verdicts := make(map[string]fileVerdict)
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		if _, ok := global[d.Code]; ok {
			continue
		}
		if len(globRules) > 0 {
			key := lowerAbs(d.FilePath)
			v, ok := verdicts[key]
			if !ok {
				v = f.evaluate(globRules, key)
				verdicts[key] = v
			}
			if v.all {
				continue
			}
			if _, hit := v.codes[d.Code]; hit {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func (f *Filterer) evaluate(rules []Rule, path string) fileVerdict {
	var v fileVerdict
	for _, r := range rules {
		if !f.matcher.Match(r.Src, path) {
			continue
		}
		if r.Codes == nil {
			v.all = true
			return v
		}
		if v.codes == nil {
			v.codes = make(map[Code]struct{}, len(r.Codes))
		}
		for code := range r.Codes {
			v.codes[code] = struct{}{}
		}
	}
	return v
}

func lowerAbs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ToLower(filepath.ToSlash(path))
}
