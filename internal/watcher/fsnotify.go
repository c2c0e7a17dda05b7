package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend implements Backend with github.com/fsnotify/fsnotify.
// It adds a watch for every directory, so it works wherever fsnotify does.
type fsnotifyBackend struct {
	logger *slog.Logger
	opts   Options
}

func newFsnotifyBackend(logger *slog.Logger, opts Options) Backend {
	return &fsnotifyBackend{logger: logger, opts: opts}
}

func (b *fsnotifyBackend) Name() string { return FSNotify }

// Open creates a dedicated fsnotify watcher for root.
func (b *fsnotifyBackend) Open(root string, sink Sink) (Stream, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fsnotifyStream{
		logger:  b.logger.With("root", root),
		opts:    b.opts,
		root:    root,
		sink:    sink,
		watcher: w,
		add:     w.Add,
		co:      newCoalescer(root, sink, b.opts),
		done:    make(chan struct{}),
	}, nil
}

type fsnotifyStream struct {
	logger  *slog.Logger
	opts    Options
	root    string
	sink    Sink
	watcher *fsnotify.Watcher
	add     func(path string) error
	co      *coalescer

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
}

// Start watches the tree and begins processing events.
func (s *fsnotifyStream) Start() error {
	if err := s.watchDir(s.root); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.processEvents()
	return nil
}

// watchLimitReached reports whether err means the system is out of watches
// or descriptors, so part of the tree can no longer be watched.
func watchLimitReached(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE)
}

// watchDir recursively watches a directory. A failure on path itself or a
// watch limit anywhere below it is returned; other failures are logged.
func (s *fsnotifyStream) watchDir(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			s.logger.Debug("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if s.opts.Ignore.Path(s.root, p) {
			return filepath.SkipDir
		}

		if err := s.add(p); err != nil {
			if p == path || watchLimitReached(err) {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			s.logger.Warn("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
}

// processEvents processes fsnotify events until the stream is stopped.
func (s *fsnotifyStream) processEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.logger.Warn("fsnotify queue overflowed, rescanning root")
				s.co.add(s.root, true)
				continue
			}
			s.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// handleEvent maps an fsnotify event onto a rescan of the directory holding
// the changed entry.
func (s *fsnotifyStream) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if path == s.root {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			s.co.rootChanged()
		}
		return
	}
	if s.opts.Ignore.Path(s.root, path) {
		return
	}

	if event.Has(fsnotify.Create) {
		// Directories created before the watch lands are caught by the
		// recursive scan the monitor does for new directories.
		if err := s.watchDir(path); err != nil {
			if watchLimitReached(err) {
				s.sink.Fail(err)
				return
			}
			s.logger.Debug("failed to watch new entry", "path", path, "error", err)
		}
	}

	s.co.add(filepath.Dir(path), false)
}

// Stop ends event delivery and waits for the event goroutine.
func (s *fsnotifyStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.co.stop()
	})
}

// Close releases the fsnotify watcher.
func (s *fsnotifyStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
	})
	return err
}
