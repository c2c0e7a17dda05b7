//go:build !linux

package watcher

import (
	"log/slog"
	"runtime"

	"github.com/listenupapp/treewatch/internal/errors"
)

// newInotifyBackend is a stub; inotify only exists on Linux.
func newInotifyBackend(_ *slog.Logger, _ Options) (Backend, error) {
	return nil, errors.Unsupportedf("inotify backend not available on %s", runtime.GOOS)
}
