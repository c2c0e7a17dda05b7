// Package sse streams monitor lifecycle and change events to HTTP clients
// as Server-Sent Events.
package sse

import (
	"time"

	"github.com/listenupapp/treewatch/internal/filetree"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventMonitorRegistered is sent once a directory is being watched.
	EventMonitorRegistered EventType = "monitor.registered"
	// EventMonitorUnregistered is sent when a monitor stops, for any reason.
	EventMonitorUnregistered EventType = "monitor.unregistered"
	// EventMonitorError reports a stream failure just before the monitor
	// is unregistered.
	EventMonitorError EventType = "monitor.error"
	// EventFilesChanged carries one batch of change events.
	EventFilesChanged EventType = "files.changed"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Monitor limits delivery to clients following that monitor. Empty
	// means every client.
	Monitor string `json:"monitor,omitempty"`
}

// MonitorEventData is the payload of monitor.registered.
type MonitorEventData struct {
	Handle string `json:"handle"`
	Root   string `json:"root"`
	Nodes  int    `json:"nodes"`
}

// UnregisteredEventData is the payload of monitor.unregistered.
type UnregisteredEventData struct {
	Handle string `json:"handle"`
	Root   string `json:"root"`
}

// ErrorEventData is the payload of monitor.error.
type ErrorEventData struct {
	Handle string `json:"handle"`
	Error  string `json:"error"`
}

// FilesChangedEventData is the payload of files.changed.
type FilesChangedEventData struct {
	Handle string                 `json:"handle"`
	Events []filetree.ChangeEvent `json:"events"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewMonitorRegisteredEvent creates a monitor.registered event.
func NewMonitorRegisteredEvent(handle, root string, nodes int) Event {
	return Event{
		Type:      EventMonitorRegistered,
		Monitor:   handle,
		Timestamp: time.Now(),
		Data:      MonitorEventData{Handle: handle, Root: root, Nodes: nodes},
	}
}

// NewMonitorUnregisteredEvent creates a monitor.unregistered event.
func NewMonitorUnregisteredEvent(handle, root string) Event {
	return Event{
		Type:      EventMonitorUnregistered,
		Monitor:   handle,
		Timestamp: time.Now(),
		Data:      UnregisteredEventData{Handle: handle, Root: root},
	}
}

// NewMonitorErrorEvent creates a monitor.error event.
func NewMonitorErrorEvent(handle string, err error) Event {
	return Event{
		Type:      EventMonitorError,
		Monitor:   handle,
		Timestamp: time.Now(),
		Data:      ErrorEventData{Handle: handle, Error: err.Error()},
	}
}

// NewFilesChangedEvent creates a files.changed event.
func NewFilesChangedEvent(handle string, events []filetree.ChangeEvent) Event {
	return Event{
		Type:      EventFilesChanged,
		Monitor:   handle,
		Timestamp: time.Now(),
		Data:      FilesChangedEventData{Handle: handle, Events: events},
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Timestamp: now,
		Data:      HeartbeatEventData{ServerTime: now},
	}
}
