package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// debounce coalesces the burst of fsnotify events a single `cp`/editor
// save typically produces into one reload.
const debounce = 200 * time.Millisecond

// ProviderUpdate is the subset of a provider's config hot-reload may
// change in place, without restarting adapters or breakers.
type ProviderUpdate struct {
	Model     string
	Priority  uint8
	Fallbacks []provider.Provider
}

// Updater receives hot-reloaded field changes for one provider at a
// time. Implementations apply Model via Adapter.SetModel and
// Priority/Fallbacks via whatever holds the Router's config map.
type Updater interface {
	ApplyProviderUpdate(p provider.Provider, u ProviderUpdate)
}

// Watcher watches ~/.prred/config.yaml and applies hot-reloadable
// field changes (model, priority, fallbacks) to an Updater. Any other
// field change (API keys, base URLs, timeouts) requires a restart —
// those are read once at startup and intentionally not live-reloaded,
// since swapping credentials or transport settings under live traffic
// is not safe to do implicitly.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	current *Config
	updater Updater
}

// NewWatcher builds a Watcher seeded with the currently-loaded config.
// Call Start to begin watching; Stop to release the fsnotify handle.
func NewWatcher(initial *Config, updater Updater, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: fsw, logger: logger, current: initial, updater: updater}, nil
}

// Start adds the config file to the watch list and begins the event
// loop in a background goroutine. It is a no-op (returns nil) if the
// config file does not exist yet, since there is nothing to watch.
func (w *Watcher) Start() error {
	path := configFilePath()
	if !fileExists(path) {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error { return w.watcher.Close() }

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load()
	if err != nil {
		w.logger.Warn("config hot-reload failed, keeping previous config", zap.Error(err))
		return
	}

	byProvider := make(map[provider.Provider]ProviderEntry, len(next.Providers))
	for _, e := range next.Providers {
		if p, ok := provider.ParseProvider(e.Provider); ok {
			byProvider[p] = e
		}
	}

	for p, entry := range byProvider {
		fallbacks := make([]provider.Provider, 0, len(entry.Fallbacks))
		for _, name := range entry.Fallbacks {
			if fp, ok := provider.ParseProvider(name); ok {
				fallbacks = append(fallbacks, fp)
			}
		}
		w.updater.ApplyProviderUpdate(p, ProviderUpdate{
			Model:     entry.Model,
			Priority:  entry.Priority,
			Fallbacks: fallbacks,
		})
	}

	w.current = next
	w.logger.Info("config hot-reload applied", zap.Int("providers", len(byProvider)))
}
