package diag

import "sort"

// Bag accumulates diagnostics up to a limit. A zero or negative limit means
// unbounded.
type Bag struct {
	items []Diagnostic
	max   int
}

func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add appends d unless the limit is reached.
// Returns false when d was dropped.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// HasErrors returns true if at least one diagnostic is an error.
func (b *Bag) HasErrors() bool {
	return HasErrors(b.items)
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the backing slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends every diagnostic of other, ignoring the limit.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by file, start, end, severity (desc) and code.
func (b *Bag) Sort() {
	Sort(b.items)
}

// Sort orders diags in place the same way Bag.Sort does.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		di, dj := diags[i], diags[j]
		if di.FilePath != dj.FilePath {
			return di.FilePath < dj.FilePath
		}
		if di.Range.StartLine != dj.Range.StartLine {
			return di.Range.StartLine < dj.Range.StartLine
		}
		if di.Range.StartCol != dj.Range.StartCol {
			return di.Range.StartCol < dj.Range.StartCol
		}
		if di.Range.EndLine != dj.Range.EndLine {
			return di.Range.EndLine < dj.Range.EndLine
		}
		if di.Range.EndCol != dj.Range.EndCol {
			return di.Range.EndCol < dj.Range.EndCol
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for i := range diags {
		if diags[i].Severity >= SevError {
			return true
		}
	}
	return false
}
