// Package watcher turns platform file-change notifications into rescan
// requests for a watched directory tree.
//
// Each backend wraps one OS mechanism behind the same Backend interface:
//   - inotify: Linux kernel events, one inotify instance per stream
//   - fsevents: macOS FSEvents, one event stream per watched root
//   - fsnotify: portable fallback built on github.com/fsnotify/fsnotify
//   - poll: periodic deep rescans, for filesystems without change events
//
// Backends never describe what changed. They only report which directory to
// look at again and whether the look has to be recursive.
package watcher

import (
	"log/slog"
	"runtime"

	"github.com/listenupapp/treewatch/internal/errors"
)

// Backend names accepted by New.
const (
	Auto     = "auto"
	Inotify  = "inotify"
	FSEvents = "fsevents"
	FSNotify = "fsnotify"
	Poll     = "poll"
)

// Names lists every backend name New accepts.
var Names = []string{Auto, Inotify, FSEvents, FSNotify, Poll}

// New creates the named backend. An empty name or Auto picks the best one
// for the current platform:
//   - Linux: inotify
//   - macOS built with cgo: FSEvents
//   - everything else: fsnotify
func New(name string, logger *slog.Logger, opts Options) (Backend, error) {
	opts.setDefaults()

	if name == "" || name == Auto {
		name = defaultBackend()
	}

	var (
		backend Backend
		err     error
	)
	switch name {
	case Inotify:
		backend, err = newInotifyBackend(logger, opts)
	case FSEvents:
		backend, err = newFSEventsBackend(logger, opts)
	case FSNotify:
		backend = newFsnotifyBackend(logger, opts)
	case Poll:
		backend = newPollBackend(logger, opts)
	default:
		return nil, errors.Unsupportedf("unknown watch backend %q", name)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("watch backend selected", "backend", backend.Name(), "platform", runtime.GOOS)
	return backend, nil
}

func defaultBackend() string {
	switch {
	case runtime.GOOS == "linux":
		return Inotify
	case runtime.GOOS == "darwin" && fseventsAvailable:
		return FSEvents
	default:
		return FSNotify
	}
}
