// Package service holds the application logic that sits between the HTTP API
// and the monitor core.
package service

import (
	"context"
	"log/slog"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/journal"
	"github.com/listenupapp/treewatch/internal/monitor"
	"github.com/listenupapp/treewatch/internal/sse"
)

// Emitter publishes events to connected clients.
type Emitter interface {
	Emit(event sse.Event)
}

// Journal records delivered change batches. Implementations must not block.
type Journal interface {
	Record(monitor string, events []filetree.ChangeEvent)
}

// History reads journaled change events.
type History interface {
	Recent(ctx context.Context, monitor string, limit int) ([]journal.Entry, error)
}

// MonitorService registers directories with the monitor registry and fans
// every callback out to the event stream and the journal. All registry access
// goes through the mailbox so it happens on the loop goroutine.
type MonitorService struct {
	registry *monitor.Registry
	mailbox  *monitor.Mailbox
	emitter  Emitter
	journal  Journal
	history  History
	logger   *slog.Logger
}

// NewMonitorService creates a monitor service. journal and history may be
// nil when journaling is disabled.
func NewMonitorService(registry *monitor.Registry, mailbox *monitor.Mailbox, emitter Emitter, journal Journal, history History, logger *slog.Logger) *MonitorService {
	return &MonitorService{
		registry: registry,
		mailbox:  mailbox,
		emitter:  emitter,
		journal:  journal,
		history:  history,
		logger:   logger,
	}
}

// Register starts monitoring path and returns the new monitor.
func (s *MonitorService) Register(ctx context.Context, path string) (monitor.Info, error) {
	return monitor.Call(ctx, s.mailbox, func() (monitor.Info, error) {
		h, err := s.registry.Register(path, s.callbacks())
		if err != nil {
			return monitor.Info{}, err
		}
		return s.registry.Monitor(h)
	})
}

// Enqueue schedules registration of paths without waiting for the loop.
// Failures are logged by the registry. Use it before the loop is running.
func (s *MonitorService) Enqueue(paths ...string) error {
	for _, path := range paths {
		err := s.mailbox.Post(func() {
			_, _ = s.registry.Register(path, s.callbacks()) //nolint:errcheck // logged by the registry
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Unregister stops the monitor.
func (s *MonitorService) Unregister(ctx context.Context, h monitor.Handle) error {
	if err := checkHandle(h); err != nil {
		return err
	}
	_, err := monitor.Call(ctx, s.mailbox, func() (struct{}, error) {
		return struct{}{}, s.registry.Unregister(h)
	})
	return err
}

// List returns every registered monitor.
func (s *MonitorService) List(ctx context.Context) ([]monitor.Info, error) {
	return monitor.Call(ctx, s.mailbox, func() ([]monitor.Info, error) {
		return s.registry.Monitors(), nil
	})
}

// Get describes one monitor.
func (s *MonitorService) Get(ctx context.Context, h monitor.Handle) (monitor.Info, error) {
	if err := checkHandle(h); err != nil {
		return monitor.Info{}, err
	}
	return monitor.Call(ctx, s.mailbox, func() (monitor.Info, error) {
		return s.registry.Monitor(h)
	})
}

// Tree returns the monitor's mirror as a pre-order list of records, root
// first.
func (s *MonitorService) Tree(ctx context.Context, h monitor.Handle) ([]filetree.FileRecord, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	tree, err := monitor.Call(ctx, s.mailbox, func() (*filetree.Tree, error) {
		return s.registry.Snapshot(h)
	})
	if err != nil {
		return nil, err
	}
	// The snapshot is a private copy, so walking it off the loop is safe.
	return tree.Records(), nil
}

// Events returns journaled changes for a monitor, newest first. The monitor
// need not still be registered.
func (s *MonitorService) Events(ctx context.Context, h monitor.Handle, limit int) ([]journal.Entry, error) {
	if s.history == nil {
		return nil, errors.Unavailable("change journal is disabled")
	}
	entries, err := s.history.Recent(ctx, string(h), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "read change journal")
	}
	return entries, nil
}

// checkHandle rejects malformed handles without a trip through the loop.
func checkHandle(h monitor.Handle) error {
	if !h.Valid() {
		return errors.NotFoundf("monitor %s not found", h)
	}
	return nil
}

// callbacks builds the subscriber for one registration.
func (s *MonitorService) callbacks() monitor.Callbacks {
	var root string
	return monitor.Callbacks{
		OnRegistered: func(h monitor.Handle, initial *filetree.Tree) {
			root = initial.Record(initial.Root()).Path
			s.emitter.Emit(sse.NewMonitorRegisteredEvent(string(h), root, initial.Len()))
		},
		OnFilesChanged: func(h monitor.Handle, events []filetree.ChangeEvent) {
			s.emitter.Emit(sse.NewFilesChangedEvent(string(h), events))
			if s.journal != nil {
				s.journal.Record(string(h), events)
			}
		},
		OnMonitoringError: func(h monitor.Handle, err error) {
			s.emitter.Emit(sse.NewMonitorErrorEvent(string(h), err))
		},
		OnUnregistered: func(h monitor.Handle) {
			s.logger.Debug("monitor subscriber released", "handle", h, "root", root)
			s.emitter.Emit(sse.NewMonitorUnregisteredEvent(string(h), root))
		},
	}
}
