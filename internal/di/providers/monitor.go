package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/ignore"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/monitor"
	"github.com/listenupapp/treewatch/internal/scanner"
	"github.com/listenupapp/treewatch/internal/watcher"
)

// ProvideIgnoreMatcher provides the ignore rules shared by the scanner and
// the watch backends.
func ProvideIgnoreMatcher(i do.Injector) (*ignore.Matcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return ignore.New(cfg.Watch.IgnorePatterns, cfg.Watch.IgnoreHidden)
}

// ProvideScanner provides the directory scanner.
func ProvideScanner(i do.Injector) (*scanner.Scanner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	matcher := do.MustInvoke[*ignore.Matcher](i)

	return scanner.New(log.Logger, scanner.Options{
		Ignore:           matcher,
		NormalizeUnicode: cfg.Watch.NormalizeUnicode,
	}), nil
}

// ProvideWatchBackend provides the platform watch backend.
func ProvideWatchBackend(i do.Injector) (watcher.Backend, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	matcher := do.MustInvoke[*ignore.Matcher](i)

	return watcher.New(cfg.Watch.Backend, log.Logger, watcher.Options{
		Ignore:       matcher,
		Latency:      cfg.Watch.Latency,
		PollInterval: cfg.Watch.PollInterval,
		MaxPending:   cfg.Watch.MaxPending,
	})
}

// ProvideRegistry provides the monitor registry.
func ProvideRegistry(i do.Injector) (*monitor.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	backend := do.MustInvoke[watcher.Backend](i)
	fileScanner := do.MustInvoke[*scanner.Scanner](i)

	return monitor.NewRegistry(backend, fileScanner, log.Logger, monitor.RegistryOptions{
		QueueSize: cfg.Watch.QueueSize,
	}), nil
}

// EventLoopHandle wraps the event loop and its mailbox with shutdown
// capability. The loop itself runs on the goroutine that calls Run.
type EventLoopHandle struct {
	*monitor.Loop
	Mailbox  *monitor.Mailbox
	registry *monitor.Registry
}

// Run services the loop until Stop is called.
func (h *EventLoopHandle) Run() {
	h.Loop.Run(h.Mailbox.Drain)
}

// Shutdown implements do.Shutdownable. It stops the loop if it is still
// running, rejects further mailbox work and cancels in-flight scans.
func (h *EventLoopHandle) Shutdown() error {
	h.Loop.Stop()
	h.Mailbox.Close()
	h.registry.Close()
	return nil
}

// ProvideEventLoop provides the event loop.
func ProvideEventLoop(i do.Injector) (*EventLoopHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*monitor.Registry](i)

	loop := monitor.NewLoop(registry, log.Logger, cfg.Watch.LoopSlice)
	return &EventLoopHandle{
		Loop:     loop,
		Mailbox:  monitor.NewMailbox(loop),
		registry: registry,
	}, nil
}
