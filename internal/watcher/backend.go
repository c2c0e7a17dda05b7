package watcher

// Sink receives output from a running stream. Implementations must not block
// once the stream has been stopped.
type Sink interface {
	// Notify asks for a rescan.
	Notify(Notification)
	// Fail reports that the stream can no longer deliver reliable
	// notifications, for example because the kernel ran out of watches.
	Fail(error)
}

// Stream watches one root. Open acquires OS resources, Start begins delivery,
// Stop ends delivery and waits for the stream's goroutines, and Close
// releases what Open acquired. Stop and Close are safe to call more than
// once, and Close is valid without a prior Start.
type Stream interface {
	Start() error
	Stop()
	Close() error
}

// Backend opens streams using one platform notification mechanism.
type Backend interface {
	Name() string
	Open(root string, sink Sink) (Stream, error)
}
