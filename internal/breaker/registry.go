package breaker

import (
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// Registry owns one Breaker per Provider, constructed once at startup
// from each provider's configured threshold/cool-down.
type Registry struct {
	breakers []*Breaker
}

// NewRegistry builds a Registry with a Breaker for every provider,
// using (threshold, coolDown) pairs indexed the same way as the
// provider enumeration. A zero pair falls back to the package defaults.
func NewRegistry(thresholds map[provider.Provider]int, coolDowns map[provider.Provider]time.Duration) *Registry {
	n := provider.Count()
	r := &Registry{breakers: make([]*Breaker, n)}
	for i := 0; i < n; i++ {
		p := provider.Provider(i)
		r.breakers[i] = New(thresholds[p], coolDowns[p])
	}
	return r
}

// Get returns the breaker for p, or nil if p is out of range.
func (r *Registry) Get(p provider.Provider) *Breaker {
	if int(p) < 0 || int(p) >= len(r.breakers) {
		return nil
	}
	return r.breakers[p]
}
