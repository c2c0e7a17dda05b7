package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/treewatch/internal/errors"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/journal"
	"github.com/listenupapp/treewatch/internal/monitor"
)

func (s *Server) registerMonitorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listMonitors",
		Method:      http.MethodGet,
		Path:        "/api/v1/monitors",
		Summary:     "List monitors",
		Description: "Returns every registered monitor in registration order",
		Tags:        []string{"Monitors"},
	}, s.handleListMonitors)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createMonitor",
		Method:        http.MethodPost,
		Path:          "/api/v1/monitors",
		Summary:       "Watch a directory",
		Description:   "Starts monitoring a directory tree and returns the new monitor",
		Tags:          []string{"Monitors"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateMonitor)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMonitor",
		Method:      http.MethodGet,
		Path:        "/api/v1/monitors/{id}",
		Summary:     "Get monitor",
		Description: "Returns one monitor",
		Tags:        []string{"Monitors"},
	}, s.handleGetMonitor)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteMonitor",
		Method:        http.MethodDelete,
		Path:          "/api/v1/monitors/{id}",
		Summary:       "Stop watching",
		Description:   "Unregisters a monitor and releases its watch stream",
		Tags:          []string{"Monitors"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteMonitor)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMonitorTree",
		Method:      http.MethodGet,
		Path:        "/api/v1/monitors/{id}/tree",
		Summary:     "Get monitor tree",
		Description: "Returns the monitor's in-memory mirror in pre-order, root first",
		Tags:        []string{"Monitors"},
	}, s.handleGetMonitorTree)

	huma.Register(s.api, huma.Operation{
		OperationID: "listMonitorEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/monitors/{id}/events",
		Summary:     "List journaled changes",
		Description: "Returns recorded change events for a monitor, newest first",
		Tags:        []string{"Monitors"},
	}, s.handleListMonitorEvents)
}

// MonitorResponse describes a registered monitor.
type MonitorResponse struct {
	Handle        string    `json:"handle" doc:"Monitor handle"`
	Root          string    `json:"root" doc:"Watched directory, symlinks resolved"`
	Backend       string    `json:"backend" doc:"Watch backend in use"`
	Nodes         int       `json:"nodes" doc:"Entries in the mirror, root included"`
	RegisteredAt  time.Time `json:"registered_at" doc:"Registration time"`
	Notifications uint64    `json:"notifications" doc:"Notifications processed"`
	Events        uint64    `json:"events" doc:"Change events delivered"`
}

func toMonitorResponse(info monitor.Info) MonitorResponse {
	return MonitorResponse{
		Handle:        string(info.Handle),
		Root:          info.Root,
		Backend:       info.Backend,
		Nodes:         info.Nodes,
		RegisteredAt:  info.RegisteredAt,
		Notifications: info.Notifications,
		Events:        info.Events,
	}
}

// MonitorOutput wraps a single monitor for Huma.
type MonitorOutput struct {
	Body MonitorResponse
}

// ListMonitorsResponse lists monitors.
type ListMonitorsResponse struct {
	Monitors []MonitorResponse `json:"monitors" doc:"Registered monitors"`
}

// ListMonitorsOutput wraps the monitor list for Huma.
type ListMonitorsOutput struct {
	Body ListMonitorsResponse
}

// CreateMonitorRequest is the body of a watch request.
type CreateMonitorRequest struct {
	Path string `json:"path" minLength:"1" doc:"Absolute path of the directory to watch" validate:"required,abspath"`
}

// CreateMonitorInput wraps the watch request for Huma.
type CreateMonitorInput struct {
	Body CreateMonitorRequest
}

// MonitorIDInput selects a monitor by handle.
type MonitorIDInput struct {
	ID string `path:"id" doc:"Monitor handle"`
}

// TreeResponse is a monitor's mirror.
type TreeResponse struct {
	Handle  string                `json:"handle" doc:"Monitor handle"`
	Entries []filetree.FileRecord `json:"entries" doc:"Records in pre-order, root first"`
}

// TreeOutput wraps the tree for Huma.
type TreeOutput struct {
	Body TreeResponse
}

// MonitorEventsInput selects journaled events.
type MonitorEventsInput struct {
	ID    string `path:"id" doc:"Monitor handle"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Maximum events to return"`
}

// MonitorEventsResponse lists journaled events.
type MonitorEventsResponse struct {
	Handle string          `json:"handle" doc:"Monitor handle"`
	Events []journal.Entry `json:"events" doc:"Change events, newest first"`
}

// MonitorEventsOutput wraps journaled events for Huma.
type MonitorEventsOutput struct {
	Body MonitorEventsResponse
}

func (s *Server) handleListMonitors(ctx context.Context, _ *struct{}) (*ListMonitorsOutput, error) {
	infos, err := s.services.Monitors.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list monitors", err)
	}

	resp := ListMonitorsResponse{Monitors: make([]MonitorResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Monitors = append(resp.Monitors, toMonitorResponse(info))
	}
	return &ListMonitorsOutput{Body: resp}, nil
}

func (s *Server) handleCreateMonitor(ctx context.Context, input *CreateMonitorInput) (*MonitorOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.fail(ctx, "create monitor", err)
	}

	info, err := s.services.Monitors.Register(ctx, input.Body.Path)
	if err != nil {
		return nil, s.fail(ctx, "create monitor", err)
	}
	return &MonitorOutput{Body: toMonitorResponse(info)}, nil
}

func (s *Server) handleGetMonitor(ctx context.Context, input *MonitorIDInput) (*MonitorOutput, error) {
	info, err := s.services.Monitors.Get(ctx, monitor.Handle(input.ID))
	if err != nil {
		return nil, s.fail(ctx, "get monitor", err)
	}
	return &MonitorOutput{Body: toMonitorResponse(info)}, nil
}

func (s *Server) handleDeleteMonitor(ctx context.Context, input *MonitorIDInput) (*struct{}, error) {
	if err := s.services.Monitors.Unregister(ctx, monitor.Handle(input.ID)); err != nil {
		return nil, s.fail(ctx, "delete monitor", err)
	}
	return nil, nil
}

func (s *Server) handleGetMonitorTree(ctx context.Context, input *MonitorIDInput) (*TreeOutput, error) {
	records, err := s.services.Monitors.Tree(ctx, monitor.Handle(input.ID))
	if err != nil {
		return nil, s.fail(ctx, "get monitor tree", err)
	}
	return &TreeOutput{Body: TreeResponse{Handle: input.ID, Entries: records}}, nil
}

func (s *Server) handleListMonitorEvents(ctx context.Context, input *MonitorEventsInput) (*MonitorEventsOutput, error) {
	events, err := s.services.Monitors.Events(ctx, monitor.Handle(input.ID), input.Limit)
	if err != nil {
		return nil, s.fail(ctx, "list monitor events", err)
	}
	return &MonitorEventsOutput{Body: MonitorEventsResponse{Handle: input.ID, Events: events}}, nil
}

// fail converts err into a huma error carrying its domain code. Server-side
// failures are logged.
func (s *Server) fail(ctx context.Context, op string, err error) error {
	status := domainerrors.CodeOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed", "op", op, "error", err)
	}
	return huma.NewError(status, err.Error(), err)
}
