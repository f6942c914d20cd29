package project

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher tests a path against a glob pattern.
type Matcher interface {
	Match(pattern, path string) bool
}

// GlobMatcher is the doublestar-backed Matcher ("**" crosses directories).
type GlobMatcher struct{}

func (GlobMatcher) Match(pattern, path string) bool {
	ok, err := doublestar.Match(filepath.ToSlash(pattern), filepath.ToSlash(path))
	return err == nil && ok
}

// FileEntry is one element of the manifest's files list. Src patterns are
// relative to the root directory unless absolute; a leading "!" excludes
// what earlier patterns included. Dest, when set, relocates matches.
type FileEntry struct {
	Src  []string
	Dest string
}

// DefaultFiles is used when a manifest does not list files.
var DefaultFiles = []FileEntry{
	{Src: []string{"source/**/*"}},
	{Src: []string{"manifest"}},
}

// DestPath computes where srcPath lands in the package given the files list
// and root directory. An empty result means the file is not part of the
// project.
func DestPath(entries []FileEntry, rootDir, srcPath string, m Matcher) string {
	if m == nil {
		m = GlobMatcher{}
	}
	srcPath = filepath.Clean(srcPath)
	rel := ""
	if r, err := filepath.Rel(rootDir, srcPath); err == nil && PathWithin(rootDir, srcPath) {
		rel = filepath.ToSlash(r)
	}

	dest := ""
	for _, e := range entries {
		for _, pattern := range e.Src {
			negate := strings.HasPrefix(pattern, "!")
			pattern = strings.TrimPrefix(pattern, "!")
			if pattern == "" {
				continue
			}

			var subject, base string
			if filepath.IsAbs(pattern) {
				subject = filepath.ToSlash(srcPath)
				base = globBase(pattern)
			} else {
				if rel == "" {
					continue
				}
				subject = rel
				base = globBase(filepath.ToSlash(filepath.Join(rootDir, pattern)))
			}
			if !m.Match(filepath.ToSlash(pattern), subject) {
				continue
			}
			if negate {
				dest = ""
				continue
			}
			if e.Dest == "" && !filepath.IsAbs(pattern) {
				dest = rel
				continue
			}
			under := filepath.Base(srcPath)
			if base != "" {
				if r, err := filepath.Rel(filepath.FromSlash(base), srcPath); err == nil && PathWithin(filepath.FromSlash(base), srcPath) {
					under = filepath.ToSlash(r)
				}
			}
			dest = filepath.ToSlash(filepath.Join(e.Dest, under))
		}
	}
	return dest
}

// globBase returns the leading directories of a slash-separated pattern that
// contain no glob metacharacters.
func globBase(pattern string) string {
	parts := strings.Split(pattern, "/")
	kept := make([]string, 0, len(parts))
	for i, part := range parts {
		if strings.ContainsAny(part, `*?[{\`) || i == len(parts)-1 {
			break
		}
		kept = append(kept, part)
	}
	base := strings.Join(kept, "/")
	if base == "" && strings.HasPrefix(pattern, "/") {
		return "/"
	}
	return base
}

// EscapeGlob quotes glob metacharacters so name matches only itself.
func EscapeGlob(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
