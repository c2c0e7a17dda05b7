package monitor

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSlice is how long Run services notifications before it checks for
// other input.
const DefaultSlice = time.Second

// Loop is the single goroutine that owns a Registry. Every rescan, mirror
// update and callback happens inside Run.
type Loop struct {
	registry *Registry
	logger   *slog.Logger
	slice    time.Duration

	stop      chan struct{}
	stopOnce  sync.Once
	interrupt chan struct{}
}

// NewLoop creates a loop for registry. A non-positive slice selects
// DefaultSlice.
func NewLoop(registry *Registry, logger *slog.Logger, slice time.Duration) *Loop {
	if slice <= 0 {
		slice = DefaultSlice
	}
	return &Loop{
		registry:  registry,
		logger:    logger,
		slice:     slice,
		stop:      make(chan struct{}),
		interrupt: make(chan struct{}, 1),
	}
}

// Run pumps notifications for up to one slice at a time and calls
// checkForInput between slices. When Stop is called it unregisters every
// monitor and returns.
func (l *Loop) Run(checkForInput func()) {
	l.logger.Debug("event loop started", "slice", l.slice)
	for {
		if l.runSlice() {
			l.logger.Info("event loop stopping", "monitors", l.registry.Len())
			l.registry.UnregisterAll()
			return
		}
		if checkForInput != nil {
			checkForInput()
		}
	}
}

// runSlice reports whether a stop was requested.
func (l *Loop) runSlice() bool {
	timer := time.NewTimer(l.slice)
	defer timer.Stop()

	for {
		select {
		case <-l.stop:
			return true
		default:
		}

		select {
		case <-l.stop:
			return true
		case <-l.interrupt:
			return false
		case <-timer.C:
			return false
		case env := <-l.registry.queue:
			l.registry.dispatch(env)
		}
	}
}

// Stop asks Run to tear everything down and return. It is safe to call from
// any goroutine and more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Interrupt ends the current slice early so checkForInput runs promptly.
// It is safe to call from any goroutine.
func (l *Loop) Interrupt() {
	select {
	case l.interrupt <- struct{}{}:
	default:
	}
}

// Stopped is closed once Stop has been called.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stop
}
