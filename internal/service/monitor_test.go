package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/journal"
	"github.com/listenupapp/treewatch/internal/monitor"
	"github.com/listenupapp/treewatch/internal/scanner"
	"github.com/listenupapp/treewatch/internal/sse"
	"github.com/listenupapp/treewatch/internal/watcher"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (c *captureEmitter) Emit(event sse.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEmitter) types() []sse.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sse.EventType, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

type captureJournal struct {
	mu      sync.Mutex
	batches map[string][][]filetree.ChangeEvent
}

func (c *captureJournal) Record(monitor string, events []filetree.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batches == nil {
		c.batches = make(map[string][][]filetree.ChangeEvent)
	}
	c.batches[monitor] = append(c.batches[monitor], events)
}

func (c *captureJournal) count(monitor string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches[monitor])
}

type stubHistory struct {
	entries []journal.Entry
	err     error
	gotMon  string
	gotLim  int
}

func (s *stubHistory) Recent(_ context.Context, monitor string, limit int) ([]journal.Entry, error) {
	s.gotMon, s.gotLim = monitor, limit
	return s.entries, s.err
}

type serviceFixture struct {
	svc     *MonitorService
	emitter *captureEmitter
	journal *captureJournal
	history *stubHistory
	loop    *monitor.Loop
}

func setupMonitorService(t *testing.T) *serviceFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := watcher.New(watcher.Poll, logger, watcher.Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	registry := monitor.NewRegistry(backend, scanner.New(logger, scanner.Options{}), logger, monitor.RegistryOptions{})
	loop := monitor.NewLoop(registry, logger, 10*time.Millisecond)
	mailbox := monitor.NewMailbox(loop)

	f := &serviceFixture{
		emitter: &captureEmitter{},
		journal: &captureJournal{},
		history: &stubHistory{},
		loop:    loop,
	}
	f.svc = NewMonitorService(registry, mailbox, f.emitter, f.journal, f.history, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(mailbox.Drain)
		mailbox.Close()
		registry.Close()
	}()
	t.Cleanup(func() {
		loop.Stop()
		<-done
	})
	return f
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestMonitorService_RegisterListUnregister(t *testing.T) {
	f := setupMonitorService(t)
	ctx := context.Background()

	root := tempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	info, err := f.svc.Register(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, root, info.Root)
	assert.Equal(t, 2, info.Nodes)
	assert.Equal(t, watcher.Poll, info.Backend)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, info.Handle, list[0].Handle)

	got, err := f.svc.Get(ctx, info.Handle)
	require.NoError(t, err)
	assert.Equal(t, root, got.Root)

	records, err := f.svc.Tree(ctx, info.Handle)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, root, records[0].Path)
	assert.Equal(t, filepath.Join(root, "a.txt"), records[1].Path)

	require.NoError(t, f.svc.Unregister(ctx, info.Handle))
	err = f.svc.Unregister(ctx, info.Handle)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = f.svc.Get(ctx, info.Handle)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.Equal(t, []sse.EventType{sse.EventMonitorRegistered, sse.EventMonitorUnregistered}, f.emitter.types())
	assert.Equal(t, root, unregisteredRoot(t, f.emitter))
}

// unregisteredRoot returns the root carried by the last unregistered event.
func unregisteredRoot(t *testing.T, e *captureEmitter) string {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if data, ok := e.events[i].Data.(sse.UnregisteredEventData); ok {
			return data.Root
		}
	}
	t.Fatal("no unregistered event")
	return ""
}

func TestMonitorService_RegisterInvalidPath(t *testing.T) {
	f := setupMonitorService(t)

	_, err := f.svc.Register(context.Background(), filepath.Join(tempDir(t), "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	assert.Empty(t, f.emitter.types())
}

func TestMonitorService_ChangesReachStreamAndJournal(t *testing.T) {
	f := setupMonitorService(t)
	ctx := context.Background()

	root := tempDir(t)
	info, err := f.svc.Register(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("hello"), 0o644))

	require.Eventually(t, func() bool {
		return f.journal.count(string(info.Handle)) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, f.emitter.types(), sse.EventFilesChanged)

	f.journal.mu.Lock()
	first := f.journal.batches[string(info.Handle)][0]
	f.journal.mu.Unlock()
	require.NotEmpty(t, first)
	var added bool
	for _, ev := range first {
		if ev.Kind == filetree.Added && ev.Record.Path == filepath.Join(root, "new.txt") {
			added = true
		}
	}
	assert.True(t, added, "new.txt should be reported as added")
}

func TestMonitorService_Enqueue(t *testing.T) {
	f := setupMonitorService(t)

	root := tempDir(t)
	require.NoError(t, f.svc.Enqueue(root))

	require.Eventually(t, func() bool {
		list, err := f.svc.List(context.Background())
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitorService_Events(t *testing.T) {
	f := setupMonitorService(t)

	f.history.entries = []journal.Entry{{ID: 7, Monitor: "mon-x", Kind: filetree.Removed}}
	entries, err := f.svc.Events(context.Background(), "mon-x", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "mon-x", f.history.gotMon)
	assert.Equal(t, 5, f.history.gotLim)

	f.history.err = io.ErrUnexpectedEOF
	_, err = f.svc.Events(context.Background(), "mon-x", 5)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(err))
}

func TestMonitorService_EventsWithoutJournal(t *testing.T) {
	svc := NewMonitorService(nil, nil, &captureEmitter{}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Events(context.Background(), "mon-x", 0)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestMonitorService_MalformedHandle(t *testing.T) {
	f := setupMonitorService(t)
	f.loop.Stop()
	<-f.loop.Stopped()
	ctx := context.Background()

	// Answered without the loop, which is no longer running.
	_, err := f.svc.Get(ctx, "not-a-handle")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = f.svc.Tree(ctx, "mon-")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	err = f.svc.Unregister(ctx, "../etc")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMonitorService_StoppedLoop(t *testing.T) {
	f := setupMonitorService(t)
	f.loop.Stop()

	assert.Eventually(t, func() bool {
		_, err := f.svc.List(context.Background())
		return errors.Is(err, monitor.ErrLoopStopped)
	}, 2*time.Second, 10*time.Millisecond)
}
