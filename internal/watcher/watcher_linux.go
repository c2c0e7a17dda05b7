//go:build linux

package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyMask selects the events that can change a directory listing or an
// entry's size or mtime.
const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_CLOSE_WRITE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR | unix.IN_DONT_FOLLOW

// inotifyBackend implements Backend using Linux inotify.
type inotifyBackend struct {
	logger *slog.Logger
	opts   Options
}

func newInotifyBackend(logger *slog.Logger, opts Options) (Backend, error) {
	return &inotifyBackend{logger: logger, opts: opts}, nil
}

func (b *inotifyBackend) Name() string { return Inotify }

// Open creates a dedicated inotify instance for root.
func (b *inotifyBackend) Open(root string, sink Sink) (Stream, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	return &inotifyStream{
		logger:  b.logger.With("root", root),
		opts:    b.opts,
		root:    root,
		sink:    sink,
		fd:      fd,
		rootWd:  -1,
		watches: make(map[string]int),
		wdPaths: make(map[int]string),
		co:      newCoalescer(root, sink, b.opts),
		done:    make(chan struct{}),
	}, nil
}

type inotifyStream struct {
	logger *slog.Logger
	opts   Options
	root   string
	sink   Sink
	co     *coalescer

	fd      int
	rootWd  int
	watches map[string]int
	wdPaths map[int]string
	mu      sync.RWMutex

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
}

// Start watches every directory under the root and begins reading events.
// Running out of watches fails the start.
func (s *inotifyStream) Start() error {
	if err := s.watchDir(s.root); err != nil {
		return err
	}
	s.mu.RLock()
	s.rootWd = s.watches[s.root]
	s.mu.RUnlock()

	s.wg.Add(1)
	go s.readEvents()
	return nil
}

// watchDir recursively watches a directory. Entries that vanish while the
// walk runs are skipped; exhausting the kernel's watch limit is an error.
func (s *inotifyStream) watchDir(path string) error {
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

		if err := s.addWatch(p); err != nil {
			if errors.Is(err, unix.ENOSPC) {
				return fmt.Errorf("%w: increase fs.inotify.max_user_watches", err)
			}
			if p == s.root {
				return err
			}
			s.logger.Warn("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
}

// addWatch adds an inotify watch for a path.
func (s *inotifyStream) addWatch(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[path]; exists {
		return nil
	}

	wd, err := unix.InotifyAddWatch(s.fd, path, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}

	// The kernel hands back the existing descriptor for an inode that is
	// already watched under another name.
	if old, ok := s.wdPaths[wd]; ok {
		delete(s.watches, old)
	}
	s.watches[path] = wd
	s.wdPaths[wd] = path
	return nil
}

// removeTree drops the watches for path and everything below it.
func (s *inotifyStream) removeTree(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for p, wd := range s.watches {
		if p != path && !strings.HasPrefix(p, prefix) {
			continue
		}
		//nolint:gosec // G115: wd is always a small non-negative int from inotify
		_, _ = unix.InotifyRmWatch(s.fd, uint32(wd))
		delete(s.watches, p)
		delete(s.wdPaths, wd)
	}
}

// readEvents reads events from inotify until the stream is stopped.
func (s *inotifyStream) readEvents() {
	defer s.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*64)
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Poll with a timeout so Stop is noticed without closing the fd
		// under a blocked read.
		n, err := unix.Poll(fds, 200)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			s.sink.Fail(fmt.Errorf("poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(s.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			s.sink.Fail(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		s.parseEvents(buf[:n])
	}
}

// parseEvents parses raw inotify events.
func (s *inotifyStream) parseEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(event.Len)

		name := ""
		if event.Len > 0 {
			nameBytes := buf[offset-int(event.Len) : offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		s.processEvent(int(event.Wd), name, event.Mask)
	}
}

// processEvent turns one raw event into coalescer input.
func (s *inotifyStream) processEvent(wd int, name string, mask uint32) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		s.logger.Warn("inotify queue overflowed, rescanning root")
		s.co.add(s.root, true)
		return
	}

	if wd == s.rootWd && mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_UNMOUNT) != 0 {
		s.co.rootChanged()
		return
	}

	s.mu.RLock()
	dir, ok := s.wdPaths[wd]
	s.mu.RUnlock()
	if !ok || name == "" {
		// Events about a watched directory itself also arrive, with a
		// name, on its parent's watch.
		return
	}

	path := filepath.Join(dir, name)
	if s.opts.Ignore.Path(s.root, path) {
		return
	}

	if mask&unix.IN_ISDIR != 0 {
		switch {
		case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
			s.removeTree(path)
		case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
			if err := s.watchDir(path); err != nil {
				if errors.Is(err, unix.ENOSPC) {
					s.sink.Fail(err)
					return
				}
				s.logger.Debug("failed to watch new directory", "path", path, "error", err)
			}
		}
	}

	s.co.add(dir, false)
}

// Stop ends event delivery and waits for the reader.
func (s *inotifyStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.co.stop()
	})
}

// Close releases the inotify instance.
func (s *inotifyStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
