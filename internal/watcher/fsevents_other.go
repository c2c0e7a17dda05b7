//go:build !(darwin && cgo)

package watcher

import (
	"log/slog"
	"runtime"

	"github.com/listenupapp/treewatch/internal/errors"
)

const fseventsAvailable = false

// newFSEventsBackend is a stub; FSEvents needs macOS and cgo.
func newFSEventsBackend(_ *slog.Logger, _ Options) (Backend, error) {
	return nil, errors.Unsupportedf("fsevents backend not available on %s", runtime.GOOS)
}
