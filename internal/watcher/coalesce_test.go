package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func collect(s *chanSink) []Notification {
	var out []Notification
	for {
		select {
		case n := <-s.notes:
			out = append(out, n)
		default:
			return out
		}
	}
}

// newManualCoalescer never fires on its own; tests call flush.
func newManualCoalescer(sink Sink, maxPending int) *coalescer {
	return newCoalescer("/w", sink, Options{Latency: time.Hour, MaxPending: maxPending})
}

func TestCoalescer_DedupesInFirstSeenOrder(t *testing.T) {
	sink := newChanSink()
	c := newManualCoalescer(sink, 10)

	c.add("/w/b", false)
	c.add("/w/a", false)
	c.add("/w/b", true)
	c.add("/w/a", false)
	c.flush()

	assert.Equal(t, []Notification{
		{Path: "/w/b", MustScanSubDirs: true},
		{Path: "/w/a"},
	}, collect(sink))
}

func TestCoalescer_DeepRootAbsorbsEverything(t *testing.T) {
	sink := newChanSink()
	c := newManualCoalescer(sink, 10)

	c.add("/w/a", false)
	c.add("/w", true)
	c.add("/w/b", false)
	c.flush()

	assert.Equal(t, []Notification{{Path: "/w", MustScanSubDirs: true}}, collect(sink))
}

func TestCoalescer_CollapsesPastMaxPending(t *testing.T) {
	sink := newChanSink()
	c := newManualCoalescer(sink, 3)

	for i := range 5 {
		c.add(fmt.Sprintf("/w/d%d", i), false)
	}
	c.flush()

	assert.Equal(t, []Notification{{Path: "/w", MustScanSubDirs: true}}, collect(sink))
}

func TestCoalescer_RootChangedBypassesWindow(t *testing.T) {
	sink := newChanSink()
	c := newManualCoalescer(sink, 10)

	c.add("/w/a", false)
	c.rootChanged()
	c.flush()

	assert.Equal(t, []Notification{{Path: "/w", RootChanged: true}}, collect(sink))
}

func TestCoalescer_StopDiscards(t *testing.T) {
	sink := newChanSink()
	c := newManualCoalescer(sink, 10)

	c.add("/w/a", false)
	c.stop()
	c.flush()
	c.add("/w/b", false)
	c.rootChanged()

	assert.Empty(t, collect(sink))
}

func TestCoalescer_TimerFlushes(t *testing.T) {
	sink := newChanSink()
	c := newCoalescer("/w", sink, Options{Latency: 10 * time.Millisecond, MaxPending: 10})
	defer c.stop()

	c.add("/w/a", false)

	n := sink.waitFor(t, time.Second, func(Notification) bool { return true })
	assert.Equal(t, Notification{Path: "/w/a"}, n)
}

func TestCoalescer_NegativeLatencyIsImmediate(t *testing.T) {
	sink := newChanSink()
	c := newCoalescer("/w", sink, Options{Latency: -1, MaxPending: 10})

	c.add("/w/a", false)

	assert.Equal(t, []Notification{{Path: "/w/a"}}, collect(sink))
}

func TestNotification_Kind(t *testing.T) {
	assert.Equal(t, "shallow", Notification{Path: "/w"}.Kind())
	assert.Equal(t, "deep", Notification{Path: "/w", MustScanSubDirs: true}.Kind())
	assert.Equal(t, "root_changed", Notification{Path: "/w", RootChanged: true, MustScanSubDirs: true}.Kind())
	assert.Equal(t, "deep /w", Notification{Path: "/w", MustScanSubDirs: true}.String())
}
