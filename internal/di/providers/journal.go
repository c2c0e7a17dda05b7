package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/treewatch/internal/config"
	"github.com/listenupapp/treewatch/internal/journal"
	"github.com/listenupapp/treewatch/internal/logger"
)

// JournalHandle wraps the change journal with shutdown capability. Both
// fields are nil when journaling is disabled.
type JournalHandle struct {
	Store    *journal.Store
	Recorder *journal.Recorder
}

// Enabled reports whether change events are being journaled.
func (h *JournalHandle) Enabled() bool {
	return h.Store != nil
}

// Shutdown implements do.Shutdownable. Queued batches are written before the
// database is closed.
func (h *JournalHandle) Shutdown() error {
	if !h.Enabled() {
		return nil
	}
	h.Recorder.Close()
	return h.Store.Close()
}

// ProvideJournal provides the SQLite change journal.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Journal.Enabled {
		log.Info("Change journal disabled by configuration")
		return &JournalHandle{}, nil
	}

	store, err := journal.Open(cfg.Journal.Path, log.Logger)
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		removed, err := store.Prune(ctx, time.Now().Add(-cfg.Journal.Retention))
		cancel()
		if err != nil {
			log.WithError(err).Warn("Failed to prune change journal")
		} else if removed > 0 {
			log.Info("Pruned change journal", "removed", removed, "retention", cfg.Journal.Retention)
		}
	}

	log.Info("Change journal initialized", "path", cfg.Journal.Path)

	return &JournalHandle{
		Store:    store,
		Recorder: journal.NewRecorder(store, log.Logger, cfg.Journal.Buffer),
	}, nil
}
