package workspace

import (
	"sort"
	"sync"

	"quill/internal/project"
)

// Documents holds the text of documents open in an editor, keyed by
// canonical path. Open documents take precedence over disk contents.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]string)}
}

// Set opens path or replaces its text.
func (d *Documents) Set(path, text string) {
	d.mu.Lock()
	d.docs[project.CanonicalPath(path)] = text
	d.mu.Unlock()
}

// Close forgets path.
func (d *Documents) Close(path string) {
	d.mu.Lock()
	delete(d.docs, project.CanonicalPath(path))
	d.mu.Unlock()
}

// Get returns the open text of path.
func (d *Documents) Get(path string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	text, ok := d.docs[project.CanonicalPath(path)]
	return text, ok
}

// IsOpen reports whether path is open.
func (d *Documents) IsOpen(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Paths returns every open path, sorted.
func (d *Documents) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.docs))
	for p := range d.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
