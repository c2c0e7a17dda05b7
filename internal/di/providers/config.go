// Package providers contains dependency injection providers for treewatchd.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/logger"
	"github.com/listenupapp/treewatch/internal/validation"
	"github.com/listenupapp/treewatch/internal/watchlist"
)

// Args are the command-line arguments handed to config.LoadConfig.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
		File: logger.FileConfig{
			Path:       cfg.Logger.File,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			Compress:   true,
		},
	})

	log.Info("Starting treewatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.App.DataPath,
		"backend", cfg.Watch.Backend,
	)

	return log, nil
}

// ProvideValidator provides the struct validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideWatchList provides the roots to watch at startup: the configured
// watch list followed by any directories given on the command line.
func ProvideWatchList(i do.Injector) (*watchlist.List, error) {
	cfg := do.MustInvoke[*config.Config](i)
	v := do.MustInvoke[*validation.Validator](i)

	list := &watchlist.List{}
	if cfg.Watch.WatchList != "" {
		loaded, err := watchlist.Load(cfg.Watch.WatchList, v)
		if err != nil {
			return nil, err
		}
		list = loaded
	}
	for _, arg := range cfg.Args {
		list.Roots = append(list.Roots, watchlist.Entry{Path: arg})
	}
	return list, nil
}
