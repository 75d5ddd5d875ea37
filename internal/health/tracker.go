// Package health implements component C3: per-provider rolling success
// / error statistics, EWMA latency, and staleness detection, mutated
// only under each provider's own critical section (spec §5: no global
// mutexes on the hot path).
package health

import (
	"sync"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// inactivityWindow is the single 300s window per spec §4.4 used for both
// staleness and the optimistic reset ("no activity for 300s").
const inactivityWindow = 300 * time.Second

// Stat is one provider's rolling health record (spec §3 HealthStat).
// A zero-value Stat is "optimistic-start" healthy per the invariant
// that a record with no data is considered healthy.
type Stat struct {
	Healthy              bool
	LastSuccessAt        time.Time
	LastFailureAt        time.Time
	ConsecutiveFailures  uint32
	EWMALatencyMS        uint64
	ErrorRate            float32
	TotalRequests        uint64
	SuccessfulRequests   uint64
}

func zeroStat() Stat {
	return Stat{Healthy: true}
}

// Registry owns one Stat per Provider, each guarded by its own lock so
// concurrent updates to different providers never contend.
type Registry struct {
	mu    []sync.Mutex
	stats []Stat
}

// NewRegistry creates a Registry with every provider optimistically healthy.
func NewRegistry() *Registry {
	n := provider.Count()
	r := &Registry{
		mu:    make([]sync.Mutex, n),
		stats: make([]Stat, n),
	}
	for i := range r.stats {
		r.stats[i] = zeroStat()
	}
	return r
}

// RecordSuccess applies the success-path update from spec §4.4.
func (r *Registry) RecordSuccess(p provider.Provider, latency time.Duration, now time.Time) {
	r.mu[p].Lock()
	defer r.mu[p].Unlock()
	s := &r.stats[p]

	s.TotalRequests++
	s.SuccessfulRequests++
	latMS := uint64(latency.Milliseconds())
	s.EWMALatencyMS = ((s.TotalRequests-1)*s.EWMALatencyMS + latMS) / s.TotalRequests
	s.ErrorRate *= 0.9
	s.ConsecutiveFailures = 0
	s.LastSuccessAt = now
	s.Healthy = true
}

// RecordFailure applies the failure-path update from spec §4.4.
func (r *Registry) RecordFailure(p provider.Provider, now time.Time) {
	r.mu[p].Lock()
	defer r.mu[p].Unlock()
	s := &r.stats[p]

	if r.isStaleLocked(p, now) {
		s.ConsecutiveFailures = 0
	}
	s.TotalRequests++
	s.ErrorRate = s.ErrorRate*0.9 + 0.1
	s.ConsecutiveFailures++
	s.LastFailureAt = now
	s.Healthy = s.ConsecutiveFailures < 3
}

// Get returns a snapshot of the provider's current Stat, applying the
// 300s optimistic-reset policy (spec §4.4) as of `now` without mutating
// stored state — the reset is applied lazily on read and persisted on
// the next write via RecordSuccess/RecordFailure's normal path.
func (r *Registry) Get(p provider.Provider, now time.Time) Stat {
	r.mu[p].Lock()
	defer r.mu[p].Unlock()
	s := r.stats[p]
	if r.isStaleLocked(p, now) {
		s.ConsecutiveFailures = 0
		s.Healthy = true
	}
	return s
}

// Stale reports whether the provider's record has had no activity for
// more than 300s (spec §4.4 staleness definition), making it eligible
// for a background probe.
func (r *Registry) Stale(p provider.Provider, now time.Time) bool {
	r.mu[p].Lock()
	defer r.mu[p].Unlock()
	return r.isStaleLocked(p, now)
}

func (r *Registry) isStaleLocked(p provider.Provider, now time.Time) bool {
	s := &r.stats[p]
	last := s.LastSuccessAt
	if s.LastFailureAt.After(last) {
		last = s.LastFailureAt
	}
	if last.IsZero() {
		return false // never seen activity at all is not "stale", just unused
	}
	return now.Sub(last) > inactivityWindow
}

// AllStale returns every provider whose record is currently stale, for
// the background prober (spec §4.4/§5 EXPANDED) to scan.
func (r *Registry) AllStale(now time.Time) []provider.Provider {
	var stale []provider.Provider
	for i := 0; i < provider.Count(); i++ {
		p := provider.Provider(i)
		if r.Stale(p, now) {
			stale = append(stale, p)
		}
	}
	return stale
}
