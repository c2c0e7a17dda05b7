package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/monitor"
	"github.com/listenupapp/treewatch/internal/service"
	"github.com/listenupapp/treewatch/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger, cfg.Server.HeartbeatInterval)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ProvideMonitorService provides the monitor service.
func ProvideMonitorService(i do.Injector) (*service.MonitorService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*monitor.Registry](i)
	loopHandle := do.MustInvoke[*EventLoopHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	journalHandle := do.MustInvoke[*JournalHandle](i)

	// Typed nils would defeat the service's nil checks.
	var (
		rec     service.Journal
		history service.History
	)
	if journalHandle.Enabled() {
		rec = journalHandle.Recorder
		history = journalHandle.Store
	}

	return service.NewMonitorService(registry, loopHandle.Mailbox, sseHandle.Manager, rec, history, log.Logger), nil
}
