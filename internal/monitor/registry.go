// Package monitor keeps in-memory mirrors of watched directory trees in step
// with the filesystem and reports every change to subscribers.
//
// All registry state is owned by the goroutine running Loop.Run. Backends
// deliver notifications through a queue that the loop drains, and other
// goroutines reach the registry only through a Mailbox.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/id"
	"github.com/listenupapp/treewatch/internal/metrics"
	"github.com/listenupapp/treewatch/internal/watcher"
)

// Handle identifies a registered monitor. Handles are never reused.
type Handle string

// HandlePrefix starts every Handle.
const HandlePrefix = "mon"

// Valid reports whether h is shaped like a handle Register hands out. It
// says nothing about whether h is still registered.
func (h Handle) Valid() bool {
	return id.Valid(HandlePrefix, string(h))
}

// Callbacks receive a monitor's lifecycle and changes. They run on the loop
// goroutine, one at a time, and nil members are skipped. A callback may call
// Unregister, including for its own handle.
type Callbacks struct {
	// OnRegistered receives the handle and a copy of the initial mirror.
	OnRegistered func(h Handle, initial *filetree.Tree)
	// OnRegistrationError receives the reason Register failed.
	OnRegistrationError func(err error)
	// OnFilesChanged receives each non-empty batch in delivery order.
	OnFilesChanged func(h Handle, events []filetree.ChangeEvent)
	// OnMonitoringError reports a stream failure. The monitor is
	// unregistered right after.
	OnMonitoringError func(h Handle, err error)
	// OnUnregistered is the last callback a monitor receives.
	OnUnregistered func(h Handle)
}

// Info summarizes a registered monitor.
type Info struct {
	Handle        Handle    `json:"handle"`
	Root          string    `json:"root"`
	Backend       string    `json:"backend"`
	Nodes         int       `json:"nodes"`
	RegisteredAt  time.Time `json:"registered_at"`
	Notifications uint64    `json:"notifications"`
	Events        uint64    `json:"events"`
}

// Unregistration reasons, used for logs and metrics.
const (
	ReasonRequest      = "request"
	ReasonRootChanged  = "root_changed"
	ReasonStreamFailed = "stream_failed"
	ReasonShutdown     = "shutdown"
)

// monitorContext is everything one registration owns.
type monitorContext struct {
	handle       Handle
	root         string
	tree         *filetree.Tree
	stream       watcher.Stream
	callbacks    Callbacks
	registeredAt time.Time

	notifications uint64
	events        uint64

	// done is closed on teardown so backend goroutines never block on the
	// queue of a monitor that is gone.
	done   chan struct{}
	closed bool
}

// envelope carries one sink call to the loop goroutine.
type envelope struct {
	handle Handle
	note   watcher.Notification
	err    error
}

// monitorSink forwards a stream's output onto the registry queue.
type monitorSink struct {
	handle Handle
	queue  chan<- envelope
	done   <-chan struct{}
}

func (s *monitorSink) Notify(n watcher.Notification) {
	select {
	case s.queue <- envelope{handle: s.handle, note: n}:
	case <-s.done:
	}
}

func (s *monitorSink) Fail(err error) {
	select {
	case s.queue <- envelope{handle: s.handle, err: err}:
	case <-s.done:
	}
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// QueueSize bounds notifications waiting for the loop. A full queue
	// blocks the backends, which fall back to deep rescans if the kernel
	// queue overflows meanwhile.
	QueueSize int
}

// Registry owns the live monitors.
type Registry struct {
	logger    *slog.Logger
	backend   watcher.Backend
	scanner   TreeScanner
	processor *Processor

	ctx    context.Context
	cancel context.CancelFunc

	contexts map[Handle]*monitorContext
	order    []Handle
	queue    chan envelope
}

// NewRegistry creates an empty registry.
func NewRegistry(backend watcher.Backend, scanner TreeScanner, logger *slog.Logger, opts RegistryOptions) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:    logger,
		backend:   backend,
		scanner:   scanner,
		processor: NewProcessor(scanner, logger),
		ctx:       ctx,
		cancel:    cancel,
		contexts:  make(map[Handle]*monitorContext),
		queue:     make(chan envelope, opts.QueueSize),
	}
}

// Register starts monitoring the directory at path. The platform stream is
// started before the initial recursive scan so nothing between the two is
// missed. On any failure everything acquired so far is released, the error
// is reported through OnRegistrationError and returned.
func (r *Registry) Register(path string, cb Callbacks) (Handle, error) {
	root, err := resolveRoot(path)
	if err != nil {
		return r.registrationFailed(path, cb, err)
	}

	handleID, err := id.Generate(HandlePrefix)
	if err != nil {
		return r.registrationFailed(root, cb, errors.Wrap(err, errors.CodeInternal, "generate monitor handle"))
	}

	mc := &monitorContext{
		handle:    Handle(handleID),
		root:      root,
		callbacks: cb,
		done:      make(chan struct{}),
	}
	sink := &monitorSink{handle: mc.handle, queue: r.queue, done: mc.done}

	stream, err := r.backend.Open(root, sink)
	if err != nil {
		close(mc.done)
		return r.registrationFailed(root, cb, errors.Registration(root, err))
	}
	if err := stream.Start(); err != nil {
		r.release(mc, stream)
		return r.registrationFailed(root, cb, errors.Registration(root, err))
	}

	start := time.Now()
	tree, err := r.scanner.Scan(r.ctx, root, true)
	metrics.ObserveScan(true, start, err)
	if err != nil {
		r.release(mc, stream)
		return r.registrationFailed(root, cb, errors.Registration(root, err))
	}

	mc.stream = stream
	mc.tree = tree
	mc.registeredAt = time.Now()
	r.contexts[mc.handle] = mc
	r.order = append(r.order, mc.handle)

	metrics.Registrations.WithLabelValues("ok").Inc()
	metrics.ActiveMonitors.Inc()
	metrics.TreeNodes.WithLabelValues(string(mc.handle)).Set(float64(tree.Len()))
	r.logger.Info("monitor registered",
		"handle", mc.handle,
		"root", root,
		"backend", r.backend.Name(),
		"entries", tree.Len(),
		"duration", time.Since(start),
	)

	if cb.OnRegistered != nil {
		cb.OnRegistered(mc.handle, tree.Clone())
	}
	return mc.handle, nil
}

// resolveRoot makes path absolute, resolves symlinks and checks that it
// names a directory.
func resolveRoot(path string) (string, error) {
	if path == "" {
		return "", errors.Validation("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeValidation, "invalid path %q", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeValidation, "cannot resolve %s", abs)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeValidation, "cannot stat %s", resolved)
	}
	if !info.IsDir() {
		return "", errors.Validationf("%s is not a directory", resolved)
	}
	return resolved, nil
}

func (r *Registry) registrationFailed(path string, cb Callbacks, err error) (Handle, error) {
	metrics.Registrations.WithLabelValues("error").Inc()
	r.logger.Error("monitor registration failed", "path", path, "error", err)
	if cb.OnRegistrationError != nil {
		cb.OnRegistrationError(err)
	}
	return "", err
}

// release stops and closes a stream whose registration did not complete.
func (r *Registry) release(mc *monitorContext, stream watcher.Stream) {
	close(mc.done)
	stream.Stop()
	if err := stream.Close(); err != nil {
		r.logger.Warn("failed to release watch stream", "root", mc.root, "error", err)
	}
}

// Unregister stops the monitor, releases its stream and forgets it. Once it
// returns no further callbacks are made for h.
func (r *Registry) Unregister(h Handle) error {
	mc, ok := r.contexts[h]
	if !ok {
		return errors.NotFoundf("monitor %s not found", h)
	}
	r.teardown(mc, ReasonRequest)
	return nil
}

// UnregisterAll tears down every monitor registered when it was called,
// each exactly once.
func (r *Registry) UnregisterAll() {
	for _, h := range slices.Clone(r.order) {
		if mc, ok := r.contexts[h]; ok {
			r.teardown(mc, ReasonShutdown)
		}
	}
}

// teardown stops the stream, releases it, untracks the context and finally
// tells the subscriber.
func (r *Registry) teardown(mc *monitorContext, reason string) {
	if mc.closed {
		return
	}
	mc.closed = true
	close(mc.done)

	mc.stream.Stop()
	if err := mc.stream.Close(); err != nil {
		r.logger.Warn("failed to release watch stream", "handle", mc.handle, "error", err)
	}

	delete(r.contexts, mc.handle)
	if i := slices.Index(r.order, mc.handle); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}

	metrics.ActiveMonitors.Dec()
	metrics.Unregistrations.WithLabelValues(reason).Inc()
	metrics.TreeNodes.DeleteLabelValues(string(mc.handle))
	r.logger.Info("monitor unregistered", "handle", mc.handle, "root", mc.root, "reason", reason)

	if mc.callbacks.OnUnregistered != nil {
		mc.callbacks.OnUnregistered(mc.handle)
	}
}

// dispatch handles one queued sink call on the loop goroutine.
func (r *Registry) dispatch(env envelope) {
	mc, ok := r.contexts[env.handle]
	if !ok || mc.closed {
		r.logger.Debug("dropping notification for unregistered monitor", "handle", env.handle)
		return
	}

	if env.err != nil {
		r.logger.Error("watch stream failed", "handle", mc.handle, "root", mc.root, "error", env.err)
		if mc.callbacks.OnMonitoringError != nil {
			mc.callbacks.OnMonitoringError(mc.handle, env.err)
		}
		r.teardown(mc, ReasonStreamFailed)
		return
	}

	n := env.note
	mc.notifications++
	metrics.Notifications.WithLabelValues(n.Kind()).Inc()

	if n.RootChanged {
		r.logger.Info("watch root changed", "handle", mc.handle, "root", mc.root)
		r.teardown(mc, ReasonRootChanged)
		return
	}

	events, err := r.processor.Process(r.ctx, mc.tree, n)
	if err != nil {
		r.logger.Warn("rescan abandoned", "handle", mc.handle, "path", n.Path, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	mc.events += uint64(len(events))
	for _, ev := range events {
		metrics.Events.WithLabelValues(ev.Kind.String()).Inc()
	}
	metrics.TreeNodes.WithLabelValues(string(mc.handle)).Set(float64(mc.tree.Len()))
	r.logger.Debug("files changed", "handle", mc.handle, "path", n.Path, "kind", n.Kind(), "events", len(events))

	if mc.callbacks.OnFilesChanged != nil {
		mc.callbacks.OnFilesChanged(mc.handle, events)
	}
}

// Monitors lists registered monitors in registration order.
func (r *Registry) Monitors() []Info {
	out := make([]Info, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.info(r.contexts[h]))
	}
	return out
}

// Monitor describes one registered monitor.
func (r *Registry) Monitor(h Handle) (Info, error) {
	mc, ok := r.contexts[h]
	if !ok {
		return Info{}, errors.NotFoundf("monitor %s not found", h)
	}
	return r.info(mc), nil
}

func (r *Registry) info(mc *monitorContext) Info {
	return Info{
		Handle:        mc.handle,
		Root:          mc.root,
		Backend:       r.backend.Name(),
		Nodes:         mc.tree.Len(),
		RegisteredAt:  mc.registeredAt,
		Notifications: mc.notifications,
		Events:        mc.events,
	}
}

// Snapshot returns a copy of the monitor's mirror.
func (r *Registry) Snapshot(h Handle) (*filetree.Tree, error) {
	mc, ok := r.contexts[h]
	if !ok {
		return nil, errors.NotFoundf("monitor %s not found", h)
	}
	return mc.tree.Clone(), nil
}

// Len returns the number of registered monitors.
func (r *Registry) Len() int {
	return len(r.contexts)
}

// Close cancels the context scans run under, so any later Register fails.
// Call it after the loop has stopped.
func (r *Registry) Close() {
	r.cancel()
}
