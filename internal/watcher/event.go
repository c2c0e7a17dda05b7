package watcher

import "fmt"

// Notification reports that something under Path changed.
type Notification struct {
	// Path is the directory to rescan.
	Path string

	// MustScanSubDirs asks for a recursive rescan of Path instead of a
	// listing of its immediate children. Sources set it when events were
	// dropped or coalesced.
	MustScanSubDirs bool

	// RootChanged means the watched root itself was deleted, moved or
	// replaced. The monitor must be torn down rather than rescanned.
	RootChanged bool
}

// Kind names the notification for logs and metrics.
func (n Notification) Kind() string {
	switch {
	case n.RootChanged:
		return "root_changed"
	case n.MustScanSubDirs:
		return "deep"
	default:
		return "shallow"
	}
}

// String returns a short description.
func (n Notification) String() string {
	return fmt.Sprintf("%s %s", n.Kind(), n.Path)
}
