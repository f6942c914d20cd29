package diag

type dedupKey struct {
	file string
	code Code
	rng  Range
	msg  string
}

func keyOf(d Diagnostic) dedupKey {
	return dedupKey{file: d.FilePath, code: d.Code, rng: d.Range, msg: d.Message}
}

// Dedup drops byte-for-byte duplicates (same file, code, range and message),
// keeping the first occurrence and the relative order of the rest.
func Dedup(diags []Diagnostic) []Diagnostic {
	if len(diags) < 2 {
		return diags
	}
	seen := make(map[dedupKey]struct{}, len(diags))
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		key := keyOf(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
