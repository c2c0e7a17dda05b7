package watcher

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// pollBackend requests a deep rescan of every root on a fixed interval. The
// monitor's differ turns an unchanged tree into an empty batch, so idle
// roots cost one walk per tick and nothing more.
type pollBackend struct {
	logger *slog.Logger
	opts   Options
}

func newPollBackend(logger *slog.Logger, opts Options) Backend {
	return &pollBackend{logger: logger, opts: opts}
}

func (b *pollBackend) Name() string { return Poll }

// Open records the root's identity so a replaced root can be detected.
func (b *pollBackend) Open(root string, sink Sink) (Stream, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	return &pollStream{
		logger:   b.logger.With("root", root),
		root:     root,
		sink:     sink,
		interval: b.opts.PollInterval,
		identity: info,
		done:     make(chan struct{}),
	}, nil
}

type pollStream struct {
	logger   *slog.Logger
	root     string
	sink     Sink
	interval time.Duration
	identity os.FileInfo

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start begins ticking.
func (s *pollStream) Start() error {
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *pollStream) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.rootIntact() {
				s.sink.Notify(Notification{Path: s.root, RootChanged: true})
				return
			}
			s.sink.Notify(Notification{Path: s.root, MustScanSubDirs: true})
		}
	}
}

// rootIntact reports whether the root still exists as the same directory.
func (s *pollStream) rootIntact() bool {
	info, err := os.Stat(s.root)
	if err != nil {
		s.logger.Debug("root no longer accessible", "error", err)
		return false
	}
	return info.IsDir() && os.SameFile(info, s.identity)
}

// Stop ends ticking.
func (s *pollStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// Close has nothing to release.
func (s *pollStream) Close() error {
	return nil
}
