package engine

import (
	"context"
	"errors"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// Complete is operation 2 of PRRE's upward interface (spec §6):
// single-shot completion, still routed through the Executor's chain
// walk, breaker gating, and retry/backoff — only the transport call is
// non-streaming (Adapter.Generate instead of OpenStream).
func (e *Executor) Complete(ctx context.Context, intent provider.RequestIntent) (string, error) {
	chain, err := e.router.Select(intent)
	if err != nil {
		return "", err
	}

	for _, p := range chain.Providers {
		b := e.breakers.Get(p)
		if b == nil || !b.MayRequest() {
			continue
		}
		resp, ok := e.attemptGenerateWithRetry(ctx, p, b, intent)
		if ok {
			return resp.Content, nil
		}
	}
	return "", ErrAllProvidersFailed
}

func (e *Executor) attemptGenerateWithRetry(ctx context.Context, p provider.Provider, b *breaker.Breaker, intent provider.RequestIntent) (*provider.ChatResponse, bool) {
	adapter, ok := e.adapters[p]
	if !ok {
		return nil, false
	}
	e.cfgMu.RLock()
	cfg, hasCfg := e.configs[p]
	e.cfgMu.RUnlock()
	maxRetries := 3
	timeout := 30 * time.Second
	if hasCfg {
		maxRetries = cfg.Retries()
		timeout = cfg.Timeout()
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := e.waitForRateLimit(ctx, p); err != nil {
			return nil, false
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := adapter.Generate(attemptCtx, intent)
		cancel()

		if err == nil {
			b.RecordSuccess()
			e.health.RecordSuccess(p, time.Since(start), time.Now())
			return resp, true
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			e.history.append(provider.Attempt{Provider: p, Outcome: provider.OutcomeCancelled, Message: "cancelled"})
			return nil, false
		}

		kind, ra := classify(err)
		b.RecordFailure()
		e.health.RecordFailure(p, time.Now())
		e.history.append(provider.Attempt{
			Provider:  p,
			StartedAt: start.UnixMilli(),
			EndedAt:   time.Now().UnixMilli(),
			Outcome:   outcomeFor(kind),
			Kind:      kind,
			Message:   err.Error(),
		})

		if !kind.Retryable() || attempt == maxRetries {
			break
		}
		time.Sleep(backoff(attempt, kind, ra))
	}
	return nil, false
}
