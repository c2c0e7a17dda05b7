// Package di provides dependency injection configuration for treewatchd.
package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/di/providers"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/service"
	"github.com/listenupapp/treewatch/internal/watchlist"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments without the program name.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideWatchList)

	// Watch layer
	do.Provide(injector, providers.ProvideIgnoreMatcher)
	do.Provide(injector, providers.ProvideScanner)
	do.Provide(injector, providers.ProvideWatchBackend)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideEventLoop)

	// Persistence and fan-out
	do.Provide(injector, providers.ProvideJournal)
	do.Provide(injector, providers.ProvideSSEManager)

	// Business services
	do.Provide(injector, providers.ProvideMonitorService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services so configuration and startup errors
// surface before the event loop starts.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if _, err := do.Invoke[*watchlist.List](injector); err != nil {
		return fmt.Errorf("load watch list: %w", err)
	}
	if _, err := do.Invoke[*providers.EventLoopHandle](injector); err != nil {
		return fmt.Errorf("init event loop: %w", err)
	}
	if _, err := do.Invoke[*providers.JournalHandle](injector); err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := do.Invoke[*service.MonitorService](injector); err != nil {
		return fmt.Errorf("init monitor service: %w", err)
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}
