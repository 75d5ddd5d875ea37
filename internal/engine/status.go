package engine

import (
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// ProviderHealthView is operation 3 of PRRE's upward interface (spec §6).
type ProviderHealthView struct {
	ProviderID    provider.Provider
	Healthy       bool
	LastCheckTS   time.Time
	EWMALatencyMS uint64
	ErrorRate     float32
	BreakerState  breaker.State
}

// Status returns a per-provider snapshot view, operation 3 of §6.
func (e *Executor) Status() []ProviderHealthView {
	now := time.Now()
	e.cfgMu.RLock()
	providers := make([]provider.Provider, 0, len(e.configs))
	for p := range e.configs {
		providers = append(providers, p)
	}
	e.cfgMu.RUnlock()

	views := make([]ProviderHealthView, 0, len(providers))
	for _, p := range providers {
		stat := e.health.Get(p, now)
		b := e.breakers.Get(p)
		state := breaker.Closed
		if b != nil {
			state = b.State()
		}
		lastCheck := stat.LastSuccessAt
		if stat.LastFailureAt.After(lastCheck) {
			lastCheck = stat.LastFailureAt
		}
		views = append(views, ProviderHealthView{
			ProviderID:    p,
			Healthy:       stat.Healthy,
			LastCheckTS:   lastCheck,
			EWMALatencyMS: stat.EWMALatencyMS,
			ErrorRate:     stat.ErrorRate,
			BreakerState:  state,
		})
		if e.metrics != nil {
			e.metrics.SetBreakerState(p, state)
			e.metrics.SetHealthy(p, stat.Healthy)
		}
	}
	return views
}

// History returns the bounded recent-attempt record, used by the
// status HTTP surface's debug view.
func (e *Executor) History() []provider.Attempt {
	return e.history.Snapshot()
}
