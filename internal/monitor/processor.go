package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/metrics"
	"github.com/listenupapp/treewatch/internal/watcher"
)

// TreeScanner snapshots a directory. *scanner.Scanner implements it.
type TreeScanner interface {
	// Scan reads the on-disk path.
	Scan(ctx context.Context, path string, recursive bool) (*filetree.Tree, error)
	// Normalize maps an on-disk path to the form Scan records it under.
	Normalize(path string) string
}

// Processor applies one notification to a mirror and reports what changed.
type Processor struct {
	scanner TreeScanner
	logger  *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(scanner TreeScanner, logger *slog.Logger) *Processor {
	return &Processor{
		scanner: scanner,
		logger:  logger,
	}
}

// Process rescans the notified path and brings mirror up to date with it.
//
// Every scan the notification needs runs before mirror is touched, so a
// failed scan leaves mirror exactly as it was. A path that is not in mirror
// is logged and ignored.
func (p *Processor) Process(ctx context.Context, mirror *filetree.Tree, n watcher.Notification) ([]filetree.ChangeEvent, error) {
	id, ok := mirror.Find(p.scanner.Normalize(n.Path))
	if !ok {
		p.logger.Warn("notified path not in mirror",
			"path", n.Path,
			"root", mirror.Path(mirror.Root()),
		)
		metrics.UnmatchedPaths.Inc()
		return nil, nil
	}

	// A file's changes show up in its directory's listing.
	if !mirror.IsDir(id) && id != mirror.Root() {
		id = mirror.Parent(id)
	}

	if n.MustScanSubDirs {
		return p.deep(ctx, mirror, id)
	}
	return p.shallow(ctx, mirror, id)
}

// deep rescans the subtree at id recursively, diffs it as one unit and
// splices the rescan in wholesale.
func (p *Processor) deep(ctx context.Context, mirror *filetree.Tree, id filetree.NodeID) ([]filetree.ChangeEvent, error) {
	scan, err := p.scan(ctx, mirror.Record(id).OnDisk(), true)
	if err != nil {
		return nil, err
	}

	changes := filetree.Pair(mirror, id, scan, scan.Root(), true)
	if len(changes) == 0 {
		return nil, nil
	}

	events := filetree.Expand(mirror, scan, changes)
	mirror.ReplaceSubtree(id, scan, scan.Root())
	return events, nil
}

// shallow lists the directory at id and applies the one-level diff. New
// directories are scanned recursively so their contents are reported too.
func (p *Processor) shallow(ctx context.Context, mirror *filetree.Tree, id filetree.NodeID) ([]filetree.ChangeEvent, error) {
	scan, err := p.scan(ctx, mirror.Record(id).OnDisk(), false)
	if err != nil {
		return nil, err
	}

	changes := filetree.Diff(mirror, id, scan, scan.Root(), false)
	if len(changes) == 0 {
		return nil, nil
	}

	staged := make(map[int]*filetree.Tree)
	for i, c := range changes {
		if c.Kind != filetree.Added || !c.Record.IsDir {
			continue
		}
		sub, err := p.scan(ctx, c.Record.OnDisk(), true)
		if err != nil {
			return nil, err
		}
		staged[i] = sub
	}

	events := make([]filetree.ChangeEvent, 0, len(changes))
	for i, c := range changes {
		switch c.Kind {
		case filetree.Added:
			sub, ok := staged[i]
			if !ok {
				mirror.Insert(id, c.Record)
				events = append(events, c.ChangeEvent)
				continue
			}
			mirror.Graft(id, sub, sub.Root())
			for _, rec := range sub.Walk(sub.Root()) {
				events = append(events, filetree.ChangeEvent{Kind: filetree.Added, Record: rec})
			}

		case filetree.Modified:
			mirror.SetRecord(c.Old, c.Record)
			events = append(events, c.ChangeEvent)

		case filetree.Removed:
			for _, rec := range mirror.Walk(c.Old) {
				events = append(events, filetree.ChangeEvent{Kind: filetree.Removed, Record: rec})
			}
			mirror.Remove(c.Old)
		}
	}
	return events, nil
}

func (p *Processor) scan(ctx context.Context, path string, recursive bool) (*filetree.Tree, error) {
	start := time.Now()
	tree, err := p.scanner.Scan(ctx, path, recursive)
	metrics.ObserveScan(recursive, start, err)
	return tree, err
}
