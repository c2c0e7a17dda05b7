// Command treewatch prints changes under one or more directories until
// interrupted.
//
//	treewatch [flags] DIR...
//
// Each change is printed as "kind<TAB>path". Flags are those of treewatchd;
// the HTTP API and journal are not started.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/filetree"
	"github.com/listenupapp/treewatch/internal/ignore"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/monitor"
	"github.com/listenupapp/treewatch/internal/scanner"
	"github.com/listenupapp/treewatch/internal/watcher"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "treewatch: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	if len(cfg.Args) == 0 {
		return errors.New("usage: treewatch [flags] DIR...")
	}

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})
	defer func() { _ = log.Close() }()

	matcher, err := ignore.New(cfg.Watch.IgnorePatterns, cfg.Watch.IgnoreHidden)
	if err != nil {
		return err
	}
	backend, err := watcher.New(cfg.Watch.Backend, log.Logger, watcher.Options{
		Ignore:       matcher,
		Latency:      cfg.Watch.Latency,
		PollInterval: cfg.Watch.PollInterval,
		MaxPending:   cfg.Watch.MaxPending,
	})
	if err != nil {
		return err
	}
	fileScanner := scanner.New(log.Logger, scanner.Options{
		Ignore:           matcher,
		NormalizeUnicode: cfg.Watch.NormalizeUnicode,
	})

	registry := monitor.NewRegistry(backend, fileScanner, log.Logger, monitor.RegistryOptions{
		QueueSize: cfg.Watch.QueueSize,
	})
	defer registry.Close()

	loop := monitor.NewLoop(registry, log.Logger, cfg.Watch.LoopSlice)

	// Registration runs before the loop starts, so nothing else touches the
	// registry yet.
	callbacks := monitor.Callbacks{
		OnRegistered: func(h monitor.Handle, initial *filetree.Tree) {
			log.Info("Watching", "root", initial.Path(initial.Root()), "entries", initial.Len())
		},
		OnFilesChanged: func(_ monitor.Handle, events []filetree.ChangeEvent) {
			for _, ev := range events {
				fmt.Printf("%s\t%s\n", ev.Kind, ev.Record.Path)
			}
		},
		OnMonitoringError: func(h monitor.Handle, err error) {
			log.Error("Monitor failed", "handle", h, "error", err)
		},
		OnUnregistered: func(monitor.Handle) {
			if registry.Len() == 0 {
				loop.Stop()
			}
		},
	}
	for _, dir := range cfg.Args {
		if _, err := registry.Register(dir, callbacks); err != nil {
			registry.UnregisterAll()
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		loop.Stop()
	}()

	// Run unregisters every monitor before it returns.
	loop.Run(nil)
	return nil
}
