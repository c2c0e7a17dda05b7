package monitor

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/watcher"
)

func TestNewLoop_DefaultSlice(t *testing.T) {
	reg := newTestRegistry(&fakeBackend{}, testScanner())
	assert.Equal(t, DefaultSlice, NewLoop(reg, testLogger(), 0).slice)
	assert.Equal(t, 5*time.Millisecond, NewLoop(reg, testLogger(), 5*time.Millisecond).slice)
}

func TestLoop_CallsCheckForInputBetweenSlices(t *testing.T) {
	reg := newTestRegistry(&fakeBackend{}, testScanner())
	loop := NewLoop(reg, testLogger(), 5*time.Millisecond)

	var checks atomic.Int32
	done := make(chan struct{})
	go func() {
		loop.Run(func() {
			if checks.Add(1) == 3 {
				loop.Stop()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, int32(3), checks.Load())
}

func TestLoop_DeliversQueuedNotifications(t *testing.T) {
	root := tempRoot(t)
	backend := &fakeBackend{}
	reg := newTestRegistry(backend, testScanner())
	rec := &recorder{}
	h, err := reg.Register(root, rec.callbacks())
	require.NoError(t, err)

	loop := NewLoop(reg, testLogger(), 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		loop.Run(nil)
		close(done)
	}()

	writeFile(t, filepath.Join(root, "new.txt"), "n")
	backend.last().sink.Notify(watcher.Notification{Path: root})
	waitUntil(t, func() bool { return rec.batchCount() == 1 })

	loop.Stop()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"added new.txt"}, describe(t, root, rec.batches[0]))
	assert.Equal(t, []Handle{h}, rec.unregistered)
}

func TestLoop_StopUnregistersEverything(t *testing.T) {
	backend := &fakeBackend{}
	reg := newTestRegistry(backend, testScanner())
	rec := &recorder{}
	for range 2 {
		_, err := reg.Register(tempRoot(t), rec.callbacks())
		require.NoError(t, err)
	}

	loop := NewLoop(reg, testLogger(), time.Hour)
	loop.Stop()
	loop.Stop()
	loop.Run(nil)

	assert.Zero(t, reg.Len())
	assert.Len(t, rec.unregistered, 2)
	for _, s := range backend.streams {
		stops, closes := s.counts()
		assert.Equal(t, 1, stops)
		assert.Equal(t, 1, closes)
	}

	select {
	case <-loop.Stopped():
	default:
		t.Fatal("Stopped not closed")
	}
}

func TestLoop_StopFromCallback(t *testing.T) {
	root := tempRoot(t)
	backend := &fakeBackend{}
	reg := newTestRegistry(backend, testScanner())
	loop := NewLoop(reg, testLogger(), time.Hour)

	var unregistered atomic.Int32
	_, err := reg.Register(root, Callbacks{
		OnMonitoringError: func(Handle, error) { loop.Stop() },
		OnUnregistered:    func(Handle) { unregistered.Add(1) },
	})
	require.NoError(t, err)

	backend.last().sink.Fail(errors.Internal("boom"))

	done := make(chan struct{})
	go func() {
		loop.Run(nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, int32(1), unregistered.Load())
}

func TestMailbox_CallRunsOnLoop(t *testing.T) {
	root := tempRoot(t)
	reg := newTestRegistry(&fakeBackend{}, testScanner())
	loop := NewLoop(reg, testLogger(), time.Hour)
	mailbox := NewMailbox(loop)

	done := make(chan struct{})
	go func() {
		loop.Run(mailbox.Drain)
		close(done)
	}()

	ctx := context.Background()
	h, err := Call(ctx, mailbox, func() (Handle, error) {
		return reg.Register(root, Callbacks{})
	})
	require.NoError(t, err)

	infos, err := Call(ctx, mailbox, func() ([]Info, error) {
		return reg.Monitors(), nil
	})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, h, infos[0].Handle)

	_, err = Call(ctx, mailbox, func() (struct{}, error) {
		return struct{}{}, reg.Unregister("mon-missing")
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	loop.Stop()
	<-done
	mailbox.Close()
	assert.Zero(t, reg.Len())
}
