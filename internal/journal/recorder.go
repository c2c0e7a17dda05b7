package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/metrics"
)

// Appender is the write side of Store.
type Appender interface {
	Append(ctx context.Context, monitor string, events []filetree.ChangeEvent, at time.Time) error
}

type batch struct {
	monitor string
	events  []filetree.ChangeEvent
	at      time.Time
}

// Recorder writes batches on its own goroutine so the event loop never waits
// on disk. When the queue is full batches are dropped and counted.
type Recorder struct {
	store  Appender
	logger *slog.Logger

	mu     sync.Mutex
	queue  chan batch
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder starts a recorder that queues up to buffer batches.
func NewRecorder(store Appender, logger *slog.Logger, buffer int) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan batch, buffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues a batch. It never blocks.
func (r *Recorder) Record(monitor string, events []filetree.ChangeEvent) {
	if len(events) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- batch{monitor: monitor, events: events, at: time.Now()}:
	default:
		metrics.JournalDropped.Add(float64(len(events)))
		r.logger.Warn("journal queue full, dropping batch", "monitor", monitor, "events", len(events))
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for b := range r.queue {
		if err := r.store.Append(context.Background(), b.monitor, b.events, b.at); err != nil {
			metrics.JournalDropped.Add(float64(len(b.events)))
			r.logger.Error("failed to journal events", "monitor", b.monitor, "events", len(b.events), "error", err)
		}
	}
}

// Close writes out everything already queued and stops the recorder.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}
