package engine

import (
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/config"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// ApplyProviderUpdate implements config.Updater: it hot-swaps a
// provider's model on its live Adapter and pushes the new
// priority/fallback chain into the Router, without touching the
// breaker, health registry, or any in-flight request.
func (e *Executor) ApplyProviderUpdate(p provider.Provider, u config.ProviderUpdate) {
	if a, ok := e.adapters[p]; ok && u.Model != "" {
		a.SetModel(u.Model)
	}
	e.router.UpdatePriorityAndFallbacks(p, u.Priority, u.Fallbacks)

	e.cfgMu.Lock()
	if cfg, ok := e.configs[p]; ok {
		cfg.Priority = u.Priority
		cfg.Fallbacks = u.Fallbacks
		if u.Model != "" {
			cfg.Model = u.Model
		}
		e.configs[p] = cfg
	}
	e.cfgMu.Unlock()

	e.logger.Info("provider config hot-reloaded",
		zap.String("provider", p.String()),
		zap.Uint8("priority", u.Priority),
	)
}
