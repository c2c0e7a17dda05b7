package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/listenupapp/treewatch/internal/filetree"
)

// walker fills one tree during a single scan.
type walker struct {
	ctx       context.Context
	tree      *filetree.Tree
	scanner   *Scanner
	recursive bool
}

// readDir records the entries of the directory at id, descending into
// subdirectories when the walk is recursive. All reads use on-disk names.
func (w *walker) readDir(id filetree.NodeID) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	dirPath := w.tree.Record(id).OnDisk()
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		diskPath := filepath.Join(dirPath, entry.Name())
		if w.scanner.opts.Ignore.Name(w.scanner.Normalize(entry.Name())) {
			continue
		}

		// Info is an lstat, so symlinks report as non-directories.
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", diskPath, err)
		}

		child := w.tree.Insert(id, w.scanner.record(diskPath, info))
		if w.recursive && info.IsDir() {
			if err := w.readDir(child); err != nil {
				return err
			}
		}
	}
	return nil
}
