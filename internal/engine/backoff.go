package engine

import (
	"math/rand"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

const (
	baseDelay = 1000 * time.Millisecond
	maxDelay  = 30 * time.Second

	providerUnavailableDelay = 5 * time.Second
	rateLimitFloor           = 60 * time.Second
)

// backoff computes the sleep duration before retrying attempt `a` for
// the given error kind, per spec §4.6 retry policy and §8 invariant 6.
func backoff(a int, kind provider.ErrorKind, retryAfterSeconds int) time.Duration {
	switch kind {
	case provider.KindRateLimit:
		if retryAfterSeconds > 0 {
			return time.Duration(retryAfterSeconds) * time.Second
		}
		return rateLimitFloor
	case provider.KindProviderUnavailable:
		return jitter(providerUnavailableDelay)
	case provider.KindTimeout:
		return jitter(exponential(a, 2*baseDelay))
	default:
		return jitter(exponential(a, baseDelay))
	}
}

func exponential(a int, base time.Duration) time.Duration {
	d := base
	for i := 0; i < a; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// jitter applies ±25% uniform jitter, matching spec §8 invariant 6.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}
