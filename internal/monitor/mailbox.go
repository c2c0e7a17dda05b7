package monitor

import (
	"context"
	"sync"

	"github.com/listenupapp/treewatch/internal/errors"
)

// ErrLoopStopped is returned by Call once the mailbox is closed.
var ErrLoopStopped = errors.Unavailable("monitor loop stopped")

// Mailbox lets other goroutines run work on the loop goroutine. Pass Drain
// as the checkForInput hook of Loop.Run.
type Mailbox struct {
	loop *Loop

	mu      sync.Mutex
	pending []func()
	closed  chan struct{}
	isDone  bool
}

// NewMailbox creates a mailbox that wakes loop whenever work is posted.
func NewMailbox(loop *Loop) *Mailbox {
	return &Mailbox{
		loop:   loop,
		closed: make(chan struct{}),
	}
}

// Post queues fn for the next Drain.
func (m *Mailbox) Post(fn func()) error {
	m.mu.Lock()
	if m.isDone {
		m.mu.Unlock()
		return ErrLoopStopped
	}
	m.pending = append(m.pending, fn)
	m.mu.Unlock()

	m.loop.Interrupt()
	return nil
}

// Drain runs everything posted so far, in order.
func (m *Mailbox) Drain() {
	m.mu.Lock()
	fns := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Close rejects further posts and releases callers waiting in Call. Work
// that was posted but never drained is dropped.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isDone {
		return
	}
	m.isDone = true
	m.pending = nil
	close(m.closed)
}

// Call runs fn on the loop goroutine and waits for its result.
func Call[T any](ctx context.Context, m *Mailbox, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	var zero T

	done := make(chan result, 1)
	if err := m.Post(func() {
		val, err := fn()
		done <- result{val: val, err: err}
	}); err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.closed:
		select {
		case r := <-done:
			return r.val, r.err
		default:
			return zero, ErrLoopStopped
		}
	}
}
