package engine

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// buildLimiters constructs one token-bucket limiter per provider whose
// config sets MaxRPM > 0, sized to allow a small burst of 2 requests so
// a brief traffic spike isn't rejected outright. A provider with no
// MaxRPM configured has no limiter and is never throttled here.
func buildLimiters(configs []provider.ProviderConfig) map[provider.Provider]*rate.Limiter {
	limiters := make(map[provider.Provider]*rate.Limiter, len(configs))
	for _, c := range configs {
		if c.MaxRPM == 0 {
			continue
		}
		perSecond := rate.Limit(float64(c.MaxRPM) / 60.0)
		limiters[c.Provider] = rate.NewLimiter(perSecond, 2)
	}
	return limiters
}

// waitForRateLimit blocks until provider p's advisory MaxRPM budget
// permits one more attempt, or ctx is done first. A provider with no
// configured limiter proceeds immediately.
func (e *Executor) waitForRateLimit(ctx context.Context, p provider.Provider) error {
	lim, ok := e.limiters[p]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}
