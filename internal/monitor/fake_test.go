package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/scanner"
	"github.com/listenupapp/treewatch/internal/watcher"
)

// fakeBackend hands out streams that only deliver what a test injects.
type fakeBackend struct {
	mu       sync.Mutex
	openErr  error
	startErr error
	streams  []*fakeStream
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(root string, sink watcher.Sink) (watcher.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{root: root, sink: sink, startErr: b.startErr}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[len(b.streams)-1]
}

type fakeStream struct {
	root     string
	sink     watcher.Sink
	startErr error

	mu      sync.Mutex
	started bool
	stops   int
	closes  int
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeStream) counts() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops, s.closes
}

// failingScanner fails every scan of a path in fail and delegates the rest.
type failingScanner struct {
	next TreeScanner
	fail map[string]bool
}

func (f *failingScanner) Scan(ctx context.Context, path string, recursive bool) (*filetree.Tree, error) {
	if f.fail[path] {
		return nil, errors.Scan(path, os.ErrPermission)
	}
	return f.next.Scan(ctx, path, recursive)
}

func (f *failingScanner) Normalize(path string) string {
	return f.next.Normalize(path)
}

// recorder captures callbacks.
type recorder struct {
	mu           sync.Mutex
	registered   []Handle
	initial      *filetree.Tree
	regErrors    []error
	batches      [][]filetree.ChangeEvent
	monErrors    []error
	unregistered []Handle
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnRegistered: func(h Handle, initial *filetree.Tree) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.registered = append(r.registered, h)
			r.initial = initial
		},
		OnRegistrationError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.regErrors = append(r.regErrors, err)
		},
		OnFilesChanged: func(_ Handle, events []filetree.ChangeEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.batches = append(r.batches, events)
		},
		OnMonitoringError: func(_ Handle, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.monErrors = append(r.monErrors, err)
		},
		OnUnregistered: func(h Handle) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.unregistered = append(r.unregistered, h)
		},
	}
}

func (r *recorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testScanner() *scanner.Scanner {
	return scanner.New(testLogger(), scanner.Options{})
}

func newTestRegistry(backend watcher.Backend, sc TreeScanner) *Registry {
	return NewRegistry(backend, sc, testLogger(), RegistryOptions{})
}

// tempRoot returns a fresh directory with symlinks resolved, matching what
// Register stores.
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// keepMtime restores a directory's mtime after fn changes its contents.
func keepMtime(t *testing.T, dir string, fn func()) {
	t.Helper()
	info, err := os.Stat(dir)
	require.NoError(t, err)
	fn()
	require.NoError(t, os.Chtimes(dir, info.ModTime(), info.ModTime()))
}

func describe(t *testing.T, root string, events []filetree.ChangeEvent) []string {
	t.Helper()
	out := make([]string, len(events))
	for i, ev := range events {
		rel, err := filepath.Rel(root, ev.Record.Path)
		require.NoError(t, err)
		out[i] = ev.Kind.String() + " " + filepath.ToSlash(rel)
	}
	return out
}

// dispatchNote feeds a notification straight to the registry, as the loop
// would.
func dispatchNote(r *Registry, h Handle, n watcher.Notification) {
	r.dispatch(envelope{handle: h, note: n})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
