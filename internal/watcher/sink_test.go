package watcher

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// chanSink collects stream output on buffered channels.
type chanSink struct {
	notes chan Notification
	errs  chan error
}

func newChanSink() *chanSink {
	return &chanSink{
		notes: make(chan Notification, 1024),
		errs:  make(chan error, 16),
	}
}

func (s *chanSink) Notify(n Notification) { s.notes <- n }
func (s *chanSink) Fail(err error)        { s.errs <- err }

// waitFor returns the first notification accepted by match.
func (s *chanSink) waitFor(t *testing.T, timeout time.Duration, match func(Notification) bool) Notification {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case n := <-s.notes:
			if match(n) {
				return n
			}
		case err := <-s.errs:
			t.Fatalf("unexpected stream failure: %v", err)
		case <-deadline:
			t.Fatal("timeout waiting for notification")
		}
	}
}

// drain discards whatever is already queued.
func (s *chanSink) drain() {
	for {
		select {
		case <-s.notes:
		default:
			return
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
