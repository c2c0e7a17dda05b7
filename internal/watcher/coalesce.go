package watcher

import (
	"sync"
	"time"
)

// coalescer gathers raw events for one stream and hands them to the sink as
// deduplicated notifications once the latency window closes.
type coalescer struct {
	root       string
	sink       Sink
	latency    time.Duration
	maxPending int

	mu      sync.Mutex
	order   []string
	deep    map[string]bool // path -> must scan subdirs
	timer   *time.Timer
	stopped bool
}

func newCoalescer(root string, sink Sink, opts Options) *coalescer {
	return &coalescer{
		root:       root,
		sink:       sink,
		latency:    opts.Latency,
		maxPending: opts.MaxPending,
		deep:       make(map[string]bool),
	}
}

// add records that path needs a rescan. Paths keep the order they were
// first seen in; the deep flag accumulates.
func (c *coalescer) add(path string, deep bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	switch {
	case c.deep[c.root]:
		// A pending deep rescan of the root covers everything.
	case deep && path == c.root:
		c.collapse()
	default:
		if prev, ok := c.deep[path]; ok {
			c.deep[path] = prev || deep
		} else if len(c.order) >= c.maxPending {
			c.collapse()
		} else {
			c.order = append(c.order, path)
			c.deep[path] = deep
		}
	}

	if c.latency < 0 {
		c.mu.Unlock()
		c.flush()
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.latency, c.flush)
	}
	c.mu.Unlock()
}

// collapse replaces the pending set with a single deep rescan of the root.
// Callers hold c.mu.
func (c *coalescer) collapse() {
	c.order = append(c.order[:0], c.root)
	clear(c.deep)
	c.deep[c.root] = true
}

// flush delivers everything pending.
func (c *coalescer) flush() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	order, deep := c.order, c.deep
	c.order, c.deep = nil, make(map[string]bool)
	c.timer = nil
	c.mu.Unlock()

	for _, path := range order {
		c.sink.Notify(Notification{Path: path, MustScanSubDirs: deep[path]})
	}
}

// rootChanged drops pending work and reports the root as gone right away.
func (c *coalescer) rootChanged() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.reset()
	c.mu.Unlock()

	c.sink.Notify(Notification{Path: c.root, RootChanged: true})
}

// stop discards pending work. Later calls to add and flush do nothing.
func (c *coalescer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.reset()
}

func (c *coalescer) reset() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.order = nil
	clear(c.deep)
}
