// Package filetree holds the in-memory mirror of a watched directory: file
// records, the arena-backed tree that stores them in path order, and the
// sibling-merge differ that turns two trees into change events.
package filetree

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FileRecord describes one filesystem entry as of the scan that produced it.
// Identity and ordering are by Path only.
type FileRecord struct {
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    uint64    `json:"size"`
	ModTime time.Time `json:"mod_time"`
	// DiskPath is set when the name on disk differs from Path, as it does
	// when names are normalized.
	DiskPath string `json:"disk_path,omitempty"`
}

// RecordFromInfo builds a record for path from an lstat result.
// Directories always record a zero size.
func RecordFromInfo(path string, info fs.FileInfo) FileRecord {
	rec := FileRecord{
		Path:    path,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !rec.IsDir && info.Size() > 0 {
		rec.Size = uint64(info.Size())
	}
	return rec
}

// OnDisk returns the path to use for filesystem access.
func (r FileRecord) OnDisk() string {
	if r.DiskPath != "" {
		return r.DiskPath
	}
	return r.Path
}

// Name returns the final path element.
func (r FileRecord) Name() string {
	return filepath.Base(r.Path)
}

// ContentEqual reports whether r and other agree on type, size and
// modification time. Paths are not compared.
func (r FileRecord) ContentEqual(other FileRecord) bool {
	return r.IsDir == other.IsDir &&
		r.Size == other.Size &&
		r.ModTime.Equal(other.ModTime)
}

// Compare orders records by path.
func Compare(a, b FileRecord) int {
	return strings.Compare(a.Path, b.Path)
}

// ChangeKind identifies what happened to a record.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Removed
)

// String returns the lowercase name used in logs, metrics and JSON.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind is the inverse of ChangeKind.String.
func ParseKind(s string) (ChangeKind, error) {
	switch s {
	case "added":
		return Added, nil
	case "modified":
		return Modified, nil
	case "removed":
		return Removed, nil
	default:
		return 0, fmt.Errorf("unknown change kind %q", s)
	}
}

// ChangeEvent is one entry of a change batch.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Record FileRecord `json:"record"`
}
