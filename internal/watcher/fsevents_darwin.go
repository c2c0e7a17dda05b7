//go:build darwin && cgo

package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsevents"
)

const fseventsAvailable = true

// fseventsBackend implements Backend with one FSEvents stream per root.
// FSEvents already reports directory-level changes and does its own
// coalescing, so notifications go straight to the sink.
type fseventsBackend struct {
	logger *slog.Logger
	opts   Options
}

func newFSEventsBackend(logger *slog.Logger, opts Options) (Backend, error) {
	return &fseventsBackend{logger: logger, opts: opts}, nil
}

func (b *fseventsBackend) Name() string { return FSEvents }

// Open prepares an event stream rooted at root. Nothing is scheduled until
// Start.
func (b *fseventsBackend) Open(root string, sink Sink) (Stream, error) {
	latency := b.opts.Latency
	if latency < 0 {
		latency = 0
	}

	return &fseventsStream{
		logger: b.logger.With("root", root),
		opts:   b.opts,
		root:   root,
		sink:   sink,
		es: &fsevents.EventStream{
			Paths:   []string{root},
			Latency: latency,
			EventID: fsevents.LatestEventID(),
			Flags:   fsevents.NoDefer | fsevents.WatchRoot,
		},
		done: make(chan struct{}),
	}, nil
}

type fseventsStream struct {
	logger *slog.Logger
	opts   Options
	root   string
	sink   Sink
	es     *fsevents.EventStream

	started  bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start schedules the stream.
func (s *fseventsStream) Start() error {
	if err := s.es.Start(); err != nil {
		return fmt.Errorf("start fsevents stream: %w", err)
	}
	s.started = true

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *fseventsStream) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case events, ok := <-s.es.Events:
			if !ok {
				return
			}
			for _, event := range events {
				s.handleEvent(event)
			}
		}
	}
}

func (s *fseventsStream) handleEvent(event fsevents.Event) {
	path := filepath.Clean("/" + event.Path)

	if event.Flags&fsevents.RootChanged != 0 {
		s.sink.Notify(Notification{Path: s.root, RootChanged: true})
		return
	}
	if s.opts.Ignore.Path(s.root, path) {
		return
	}

	deep := event.Flags&(fsevents.MustScanSubDirs|fsevents.UserDropped|fsevents.KernelDropped) != 0
	s.sink.Notify(Notification{Path: path, MustScanSubDirs: deep})
}

// Stop unschedules the stream and waits for the event goroutine.
func (s *fseventsStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.started {
			s.es.Stop()
		}
		s.wg.Wait()
	})
}

// Close is a no-op; Stop already invalidated and released the stream.
func (s *fseventsStream) Close() error {
	return nil
}
