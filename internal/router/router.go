// Package router implements component C4: capability- and
// health-weighted provider selection, producing an ordered chain for
// the executor to walk.
package router

import (
	"errors"
	"sync"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// ErrNoCapableProvider is returned when no configured provider supports
// the requested capability (or every candidate fails filtering),
// matching spec §4.3's NoCapableProvider edge case.
var ErrNoCapableProvider = errors.New("router: no capable provider")

// Chain is an ordered, non-empty selection result. Degraded marks a
// chain whose every member is currently Open — the executor may choose
// to short-circuit straight to an offline response instead of walking
// it (spec §4.3 edge case).
type Chain struct {
	Providers []provider.Provider
	Degraded  bool
}

// Breakers is the narrow view the Router needs of the per-provider
// circuit breaker set.
type Breakers interface {
	Get(p provider.Provider) *breaker.Breaker
}

// Router selects and orders candidate providers for a RequestIntent. It
// holds no mutable state of its own — all health/breaker state is read
// through the injected registries at selection time.
type Router struct {
	mu       sync.RWMutex
	configs  map[provider.Provider]provider.ProviderConfig
	breakers Breakers
	health   *health.Registry
}

// New builds a Router over the given per-provider policy records.
func New(configs []provider.ProviderConfig, breakers Breakers, healthRegistry *health.Registry) *Router {
	m := make(map[provider.Provider]provider.ProviderConfig, len(configs))
	for _, c := range configs {
		m[c.Provider] = c
	}
	return &Router{configs: m, breakers: breakers, health: healthRegistry}
}

// UpdatePriorityAndFallbacks applies a hot-reloaded priority/fallback
// change to provider p in place. Safe for concurrent use with Select.
func (r *Router) UpdatePriorityAndFallbacks(p provider.Provider, priority uint8, fallbacks []provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[p]
	if !ok {
		return
	}
	cfg.Priority = priority
	cfg.Fallbacks = fallbacks
	r.configs[p] = cfg
}

type scored struct {
	p        provider.Provider
	score    float64
	priority uint8
}

// Select returns the ordered provider chain for intent, per spec §4.3.
func (r *Router) Select(intent provider.RequestIntent) (Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()

	var candidates []scored
	for p, cfg := range r.configs {
		if !cfg.SupportsCapability(intent.Capability) {
			continue
		}
		b := r.breakers.Get(p)
		if b == nil || !b.MayRequest() {
			continue
		}
		candidates = append(candidates, scored{
			p:        p,
			score:    r.score(p, cfg, now),
			priority: cfg.Priority,
		})
	}

	if len(candidates) == 0 {
		return r.degradedFallback(intent, now)
	}

	primary := argmax(candidates)
	head := primary.p
	if pp, ok := r.qualifiedPreferred(intent, now); ok {
		head = pp
	}

	chain := []provider.Provider{head}
	chain = r.appendFallbacks(chain, head, intent, now)

	return Chain{Providers: chain}, nil
}

// qualifiedPreferred returns intent.PreferredProvider if it is set and
// qualifies to lead the chain: it must support the requested capability
// and currently be allowed to receive requests (spec §4.3 — "the caller
// supplied preferred_provider overrides the scoring and is prepended").
// A preferred provider that doesn't qualify is ignored entirely, same
// as any other unfit candidate.
func (r *Router) qualifiedPreferred(intent provider.RequestIntent, now time.Time) (provider.Provider, bool) {
	pp := intent.PreferredProvider
	if pp == nil {
		return 0, false
	}
	cfg, ok := r.configs[*pp]
	if !ok || !cfg.SupportsCapability(intent.Capability) {
		return 0, false
	}
	b := r.breakers.Get(*pp)
	if b == nil || !b.MayRequest() {
		return 0, false
	}
	return *pp, true
}

// score computes spec §4.3's formula, using neutral defaults for a
// provider with no health record yet.
func (r *Router) score(p provider.Provider, cfg provider.ProviderConfig, now time.Time) float64 {
	healthyFactor := 1.0
	latencyFactor := 1.0
	errorRate := 0.0

	if r.health != nil {
		stat := r.health.Get(p, now)
		if stat.TotalRequests > 0 {
			if !stat.Healthy {
				healthyFactor = 0.1
			}
			ewma := stat.EWMALatencyMS
			if ewma == 0 {
				ewma = 1
			}
			latencyFactor = clamp(1000.0/float64(ewma), 0.05, 10.0)
			errorRate = float64(stat.ErrorRate)
		}
	}

	return float64(cfg.Priority) * healthyFactor * latencyFactor * (1 - errorRate)
}

// appendFallbacks adds the chain head's own static fallback list,
// filtered to providers that support the capability and are not
// Open-and-unexpired. When intent.PreferredProvider qualified as the
// head, this is the preferred provider's fallback list, not the scored
// argmax winner's (spec §4.3: "its static fallbacks apply").
func (r *Router) appendFallbacks(chain []provider.Provider, head provider.Provider, intent provider.RequestIntent, now time.Time) []provider.Provider {
	cfg, ok := r.configs[head]
	if !ok {
		return chain
	}
	seen := make(map[provider.Provider]bool, len(chain))
	for _, p := range chain {
		seen[p] = true
	}
	for _, fb := range cfg.Fallbacks {
		if seen[fb] {
			continue
		}
		fbCfg, ok := r.configs[fb]
		if !ok || !fbCfg.SupportsCapability(intent.Capability) {
			continue
		}
		b := r.breakers.Get(fb)
		if b != nil && b.State() == breaker.Open && !b.MayRequest() {
			continue
		}
		chain = append(chain, fb)
		seen[fb] = true
	}
	return chain
}

// degradedFallback handles the "all candidates Open" edge case: the
// scoring pass above excludes providers whose breaker rejects
// may_request(), so if that leaves nothing, fall back to every
// capability-matching provider regardless of breaker state and mark
// the chain degraded.
func (r *Router) degradedFallback(intent provider.RequestIntent, now time.Time) (Chain, error) {
	var all []scored
	for p, cfg := range r.configs {
		if !cfg.SupportsCapability(intent.Capability) {
			continue
		}
		all = append(all, scored{p: p, score: r.score(p, cfg, now), priority: cfg.Priority})
	}
	if len(all) == 0 {
		return Chain{}, ErrNoCapableProvider
	}

	primary := argmax(all)
	head := primary.p
	// Degraded mode ignores breaker state for capability candidates, but
	// a preferred provider must still support the capability to qualify
	// as head — it simply skips the MayRequest() check along with every
	// other candidate here.
	if pp := intent.PreferredProvider; pp != nil {
		if cfg, ok := r.configs[*pp]; ok && cfg.SupportsCapability(intent.Capability) {
			head = *pp
		}
	}

	chain := []provider.Provider{head}
	cfg := r.configs[head]
	seen := map[provider.Provider]bool{head: true}
	for _, fb := range cfg.Fallbacks {
		if seen[fb] {
			continue
		}
		if fbCfg, ok := r.configs[fb]; ok && fbCfg.SupportsCapability(intent.Capability) {
			chain = append(chain, fb)
			seen[fb] = true
		}
	}

	return Chain{Providers: chain, Degraded: true}, nil
}

// argmax picks the highest-scoring candidate, breaking ties by higher
// static priority then lower provider id (spec §4.3 tie-break rule).
func argmax(candidates []scored) scored {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.score > best.score:
			best = c
		case c.score == best.score && c.priority > best.priority:
			best = c
		case c.score == best.score && c.priority == best.priority && c.p < best.p:
			best = c
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
