package watcher

import (
	"time"

	"github.com/listenupapp/treewatch/internal/ignore"
)

// Options configures the watch backends.
type Options struct {
	// Ignore drops raw events for matching paths. Nil selects the default
	// patterns with hidden entries ignored.
	Ignore *ignore.Matcher

	// Latency is how long event-driven backends gather raw events before
	// delivering notifications. Negative delivers immediately.
	Latency time.Duration

	// PollInterval is the rescan period of the poll backend.
	PollInterval time.Duration

	// MaxPending caps distinct pending paths per stream. Beyond it the
	// batch collapses into one deep rescan of the root.
	MaxPending int
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Ignore == nil {
		o.Ignore = ignore.MustNew(ignore.DefaultPatterns, true)
	}
	if o.Latency == 0 {
		o.Latency = 250 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 512
	}
}
