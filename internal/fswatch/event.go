// Package fswatch turns file-system notifications into Created, Changed and
// Deleted events for single paths.
package fswatch

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Kind classifies a change.
type Kind uint8

const (
	Created Kind = iota + 1
	Changed
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one change to an absolute path.
type Event struct {
	Kind Kind
	Path string
}

// Expand replaces a Created directory event with Created events for every
// regular file beneath it. Any other event is returned unchanged. Directories
// themselves are never reported.
func Expand(ev Event) []Event {
	if ev.Kind != Created {
		return []Event{ev}
	}
	info, err := os.Stat(ev.Path)
	if err != nil || !info.IsDir() {
		return []Event{ev}
	}
	var out []Event
	_ = filepath.WalkDir(ev.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, Event{Kind: Created, Path: p})
		}
		return nil
	})
	return out
}

// ExpandAll applies Expand to every event.
func ExpandAll(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, Expand(ev)...)
	}
	return out
}
