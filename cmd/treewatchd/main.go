// Package main provides the entry point for the treewatch daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/di"
	"github.com/listenupapp/treewatch/internal/di/providers"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/service"
	"github.com/listenupapp/treewatch/internal/watchlist"
)

func main() {
	// Create DI container
	injector := di.NewContainer(os.Args[1:])

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap treewatchd: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	loop := do.MustInvoke[*providers.EventLoopHandle](injector)
	monitors := do.MustInvoke[*service.MonitorService](injector)
	roots := do.MustInvoke[*watchlist.List](injector)

	// Registrations queue up in the mailbox and run once the loop starts.
	if err := monitors.Enqueue(roots.Paths()...); err != nil {
		log.WithError(err).Error("Failed to queue startup roots")
	}
	log.Info("Watching startup roots", "count", len(roots.Roots))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.WithField("signal", sig.String()).Info("Shutting down gracefully...")
		loop.Stop()
	}()

	// The registry is owned by this goroutine until Stop.
	loop.Run()

	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("Shutdown error")
	}

	log.Info("Goodbye")
	_ = log.Close()
}
