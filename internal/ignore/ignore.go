// Package ignore decides which directory entries are left out of scans and
// watch notifications.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns are used when no patterns are configured.
var DefaultPatterns = []string{
	".DS_Store",
	"*.tmp",
	"*.temp",
	"Thumbs.db",
}

// Matcher matches entry names against compiled glob patterns.
// The zero value and a nil *Matcher match nothing.
type Matcher struct {
	patterns []glob.Glob
	hidden   bool
}

// New compiles patterns. Patterns apply to a single path element, with '*'
// not crossing separators. When hidden is set every dot-prefixed element is
// ignored as well.
func New(patterns []string, hidden bool) (*Matcher, error) {
	m := &Matcher{hidden: hidden}
	for _, p := range patterns {
		g, err := glob.Compile(p, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// MustNew is New for patterns known to be valid.
func MustNew(patterns []string, hidden bool) *Matcher {
	m, err := New(patterns, hidden)
	if err != nil {
		panic(err)
	}
	return m
}

// Name reports whether a single entry name is ignored.
func (m *Matcher) Name(name string) bool {
	if m == nil {
		return false
	}
	if m.hidden && strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	for _, g := range m.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Path reports whether path lies at or under an ignored element below root.
// Elements of root itself are never considered.
func (m *Matcher) Path(root, path string) bool {
	if m == nil {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	for elem := range strings.SplitSeq(rel, string(filepath.Separator)) {
		if m.Name(elem) {
			return true
		}
	}
	return false
}
