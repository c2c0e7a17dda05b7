// Package watchlist reads the YAML file of directories treewatchd monitors
// from startup:
//
//	roots:
//	  - path: /srv/media
//	    name: media
//	  - path: ~/Documents
package watchlist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/listenupapp/treewatch/internal/validation"
)

// Entry is one directory to watch.
type Entry struct {
	Path string `yaml:"path" validate:"required,abspath"`
	Name string `yaml:"name,omitempty" validate:"omitempty,max=64"`
}

// List is the parsed watch list.
type List struct {
	Roots []Entry `yaml:"roots" validate:"min=1,dive"`
}

// Load reads and validates the watch list at path.
func Load(path string, v *validation.Validator) (*List, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- watch list path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read watch list: %w", err)
	}
	return Parse(bytes.NewReader(data), v)
}

// Parse decodes a watch list, expands ~ in paths, drops duplicate roots and
// validates the result. Unknown keys are rejected.
func Parse(r io.Reader, v *validation.Validator) (*List, error) {
	var list List
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid watch list: %w", err)
	}

	home, _ := os.UserHomeDir()
	seen := make(map[string]bool, len(list.Roots))
	roots := list.Roots[:0]
	for _, e := range list.Roots {
		e.Path = expandHome(strings.TrimSpace(e.Path), home)
		if e.Path != "" {
			e.Path = filepath.Clean(e.Path)
		}
		if e.Path != "" && seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		roots = append(roots, e)
	}
	list.Roots = roots

	if err := v.Validate(list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Paths returns the root paths in file order.
func (l *List) Paths() []string {
	out := make([]string, len(l.Roots))
	for i, e := range l.Roots {
		out[i] = e.Path
	}
	return out
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}
