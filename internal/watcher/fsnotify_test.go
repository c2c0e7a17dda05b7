package watcher

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openFsnotify opens a stream on root whose watch calls fail with fail for
// any path it returns true for.
func openFsnotify(t *testing.T, root string, sink Sink, fail func(path string) error) *fsnotifyStream {
	t.Helper()
	stream, err := newFsnotifyBackend(testLogger(), testOptions()).Open(root, sink)
	require.NoError(t, err)
	s := stream.(*fsnotifyStream)
	t.Cleanup(func() {
		s.Stop()
		_ = s.Close()
	})

	add := s.add
	s.add = func(path string) error {
		if err := fail(path); err != nil {
			return err
		}
		return add(path)
	}
	return s
}

func TestFsnotifyStream_WatchLimitFailsStream(t *testing.T) {
	root := t.TempDir()
	sink := newChanSink()
	full := filepath.Join(root, "full")
	s := openFsnotify(t, root, sink, func(path string) error {
		if path == full {
			return syscall.ENOSPC
		}
		return nil
	})
	require.NoError(t, s.Start())

	require.NoError(t, os.Mkdir(full, 0o755))
	s.handleEvent(fsnotify.Event{Name: full, Op: fsnotify.Create})

	select {
	case err := <-sink.errs:
		assert.ErrorIs(t, err, syscall.ENOSPC)
	case <-time.After(2 * time.Second):
		t.Fatal("watch limit did not fail the stream")
	}
}

func TestFsnotifyStream_WatchLimitBelowRootFailsStart(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	s := openFsnotify(t, root, newChanSink(), func(path string) error {
		if path == nested {
			return syscall.EMFILE
		}
		return nil
	})

	err := s.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EMFILE)
}

func TestFsnotifyStream_OtherWatchErrorsAreLogged(t *testing.T) {
	root := t.TempDir()
	sink := newChanSink()
	denied := filepath.Join(root, "denied")
	s := openFsnotify(t, root, sink, func(path string) error {
		if path == denied {
			return syscall.EACCES
		}
		return nil
	})
	require.NoError(t, s.Start())

	require.NoError(t, os.Mkdir(denied, 0o755))
	s.handleEvent(fsnotify.Event{Name: denied, Op: fsnotify.Create})

	n := sink.waitFor(t, 2*time.Second, func(Notification) bool { return true })
	assert.False(t, n.RootChanged)
	assert.Empty(t, sink.errs)
}
