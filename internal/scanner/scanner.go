// Package scanner snapshots a directory on disk into a filetree.Tree.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/ignore"
)

// Options configures what a scan records.
type Options struct {
	// Ignore filters entry names. Nil ignores nothing.
	Ignore *ignore.Matcher
	// NormalizeUnicode records paths in NFC. Useful on filesystems that
	// hand back decomposed names, such as HFS+. The name found on disk is
	// kept in FileRecord.DiskPath for later reads.
	NormalizeUnicode bool
}

// Scanner reads directory trees. It keeps no state between scans.
type Scanner struct {
	logger *slog.Logger
	opts   Options
}

// New creates a scanner.
func New(logger *slog.Logger, opts Options) *Scanner {
	return &Scanner{
		logger: logger,
		opts:   opts,
	}
}

// Normalize returns the form path takes in scanned records.
func (s *Scanner) Normalize(path string) string {
	if s.opts.NormalizeUnicode {
		return norm.NFC.String(path)
	}
	return path
}

// record builds the record for the entry found on disk at diskPath.
func (s *Scanner) record(diskPath string, info fs.FileInfo) filetree.FileRecord {
	rec := filetree.RecordFromInfo(s.Normalize(diskPath), info)
	if rec.Path != diskPath {
		rec.DiskPath = diskPath
	}
	return rec
}

// Scan snapshots path, which must name the entry as it exists on disk. A non-recursive scan records only the immediate
// children of path; a recursive scan records the whole subtree. Symbolic
// links are recorded as files and never followed.
//
// Any filesystem error aborts the scan and a *errors.Error with CodeScan is
// returned. No partial tree is ever returned.
func (s *Scanner) Scan(ctx context.Context, path string, recursive bool) (*filetree.Tree, error) {
	start := time.Now()
	path = filepath.Clean(path)

	info, err := os.Lstat(path)
	if err != nil {
		return nil, errors.Scan(path, err)
	}

	tree := filetree.New(s.record(path, info))
	if info.IsDir() {
		w := walker{ctx: ctx, tree: tree, scanner: s, recursive: recursive}
		if err := w.readDir(tree.Root()); err != nil {
			return nil, errors.Scan(path, err)
		}
	}

	s.logger.Debug("scan complete",
		"path", path,
		"recursive", recursive,
		"entries", tree.Len(),
		"duration", time.Since(start),
	)
	return tree, nil
}
