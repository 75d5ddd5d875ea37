// Package engine implements component C6: the RetryExecutor that walks
// a Router-selected chain, applies per-provider breaker gating, retry
// with backoff, and (optionally) parallel racing, forwarding Deltas to
// the caller and updating health/breaker state as attempts complete.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/metrics"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

// ErrAllProvidersFailed is returned when every provider in the chain
// was tried (or skipped as Open) and none succeeded.
var ErrAllProvidersFailed = errors.New("engine: all providers failed")

// raceTopK is the default fan-out width for parallel racing (spec §4.6).
const raceTopK = 2

// Executor is component C6. It holds no per-request state; Chat/
// Complete/Status may be called concurrently.
type Executor struct {
	router   *router.Router
	breakers *breaker.Registry
	health   *health.Registry
	adapters map[provider.Provider]provider.Adapter
	cfgMu    sync.RWMutex
	configs  map[provider.Provider]provider.ProviderConfig
	limiters map[provider.Provider]*rate.Limiter
	logger   *zap.Logger
	history  *attemptHistory
	metrics  *metrics.Recorder // optional; nil-safe, set via SetMetrics
}

// SetMetrics attaches a Prometheus recorder. Safe to call once at
// startup before traffic begins; nil is a valid no-op state.
func (e *Executor) SetMetrics(m *metrics.Recorder) { e.metrics = m }

// New builds an Executor wired to the given Router, breaker/health
// registries, one Adapter per configured provider, and each provider's
// policy record (for its per-provider timeout/retry budget).
func New(r *router.Router, breakers *breaker.Registry, healthRegistry *health.Registry, adapters map[provider.Provider]provider.Adapter, configs []provider.ProviderConfig, logger *zap.Logger) *Executor {
	cfgMap := make(map[provider.Provider]provider.ProviderConfig, len(configs))
	for _, c := range configs {
		cfgMap[c.Provider] = c
	}
	return &Executor{
		router:   r,
		breakers: breakers,
		health:   healthRegistry,
		adapters: adapters,
		configs:  cfgMap,
		limiters: buildLimiters(configs),
		logger:   logger,
		history:  newAttemptHistory(100),
	}
}

// Chat is operation 1 of PRRE's upward interface (spec §6): streaming
// chat completion. The returned channel is closed after its last Delta,
// which always has Final=true, unless ctx is cancelled first.
func (e *Executor) Chat(ctx context.Context, intent provider.RequestIntent) <-chan provider.Delta {
	out := make(chan provider.Delta, 8)

	go func() {
		defer close(out)

		chain, err := e.router.Select(intent)
		if err != nil {
			out <- errorDelta(provider.KindConfig, err.Error())
			return
		}
		if chain.Degraded {
			e.logger.Warn("routing degraded: all candidates currently open", zap.String("request_id", intent.RequestID))
		}

		var success, terminated bool
		if intent.Race && len(chain.Providers) >= 2 {
			success, terminated = e.race(ctx, intent, chain, out)
		} else {
			success, terminated = e.walkChainStreaming(ctx, intent, chain.Providers, out)
		}
		if success || terminated {
			// terminated means a terminal Delta (success or HasErr) has
			// already reached out on this attempt; the executor never
			// fails over or degrades once any content was forwarded
			// mid-stream (spec §4.6).
			return
		}

		e.degrade(intent, out)
	}()

	return out
}

// walkChainStreaming runs the sequential algorithm from spec §4.6 over
// one chain, forwarding Deltas to out. success reports a completed
// stream; terminated reports that a terminal Delta (success or error)
// already reached out, so the caller must not try another provider or
// degrade.
func (e *Executor) walkChainStreaming(ctx context.Context, intent provider.RequestIntent, chain []provider.Provider, out chan<- provider.Delta) (success bool, terminated bool) {
	for _, p := range chain {
		b := e.breakers.Get(p)
		if b == nil || !b.MayRequest() {
			continue
		}
		ok, term := e.attemptStreamWithRetry(ctx, p, b, intent, out)
		if ok {
			return true, true
		}
		if term {
			return false, true
		}
	}
	return false, false
}

// attemptStreamWithRetry runs the retry loop for a single provider.
// terminated is true whenever a terminal Delta has already been pushed
// to out on this provider's account, win or lose; the caller must stop
// in that case rather than fail over or degrade (spec §4.6).
func (e *Executor) attemptStreamWithRetry(ctx context.Context, p provider.Provider, b *breaker.Breaker, intent provider.RequestIntent, out chan<- provider.Delta) (success bool, terminated bool) {
	adapter, ok := e.adapters[p]
	if !ok {
		return false, false
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
			return false, false
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)

		forwarded, finalErr := e.runOneStreamAttempt(attemptCtx, adapter, intent, out)
		cancel()

		if finalErr == nil {
			b.RecordSuccess()
			e.health.RecordSuccess(p, time.Since(start), time.Now())
			if e.metrics != nil {
				e.metrics.RecordRequest(p, true, time.Since(start).Seconds())
			}
			return true, true
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			e.history.append(provider.Attempt{Provider: p, Outcome: provider.OutcomeCancelled, Kind: provider.KindUnknown, Message: "cancelled"})
			if forwarded {
				out <- provider.Delta{Final: true, HasErr: true, Err: provider.KindUnknown, Content: "cancelled"}
			}
			return false, forwarded
		}

		kind, ra := classify(finalErr)
		b.RecordFailure()
		e.health.RecordFailure(p, time.Now())
		if e.metrics != nil {
			e.metrics.RecordRequest(p, false, time.Since(start).Seconds())
			e.metrics.RecordRetry(p, kind)
		}
		e.history.append(provider.Attempt{
			Provider:  p,
			StartedAt: start.UnixMilli(),
			EndedAt:   time.Now().UnixMilli(),
			Outcome:   outcomeFor(kind),
			Kind:      kind,
			Message:   finalErr.Error(),
		})

		if forwarded {
			// runOneStreamAttempt has already pushed a terminal error
			// Delta for this partial stream; per spec §4.6 the executor
			// never fails over or degrades mid-stream.
			return false, true
		}
		if !kind.Retryable() || attempt == maxRetries {
			break
		}
		time.Sleep(backoff(attempt, kind, ra))
	}

	return false, false
}

// runOneStreamAttempt opens one stream and forwards Deltas as they
// arrive. It reports forwarded=true once any Delta has reached out,
// since from that point the executor commits to this provider. If the
// adapter fails after forwarding without itself sending a terminal
// error Delta (e.g. a bare post-partial read error), runOneStreamAttempt
// synthesizes one so the stream always ends with a final, error-marked
// Delta rather than a silent channel close.
func (e *Executor) runOneStreamAttempt(ctx context.Context, adapter provider.Adapter, intent provider.RequestIntent, out chan<- provider.Delta) (forwarded bool, err error) {
	ch := make(chan provider.Delta, 8)
	done := make(chan error, 1)

	go func() {
		done <- adapter.OpenStream(ctx, intent, ch)
		close(ch)
	}()

	for d := range ch {
		forwarded = true
		out <- d
		if d.Final {
			if d.HasErr {
				return forwarded, &provider.AdapterError{Kind: d.Err, Message: "mid-stream failure"}
			}
			return forwarded, nil
		}
	}
	if streamErr := <-done; streamErr != nil {
		if forwarded {
			kind, _ := classify(streamErr)
			out <- provider.Delta{Final: true, HasErr: true, Err: kind, Content: streamErr.Error()}
		}
		return forwarded, streamErr
	}
	return forwarded, nil
}

func errorDelta(kind provider.ErrorKind, msg string) provider.Delta {
	return provider.Delta{Final: true, Err: kind, HasErr: true, Content: msg}
}

func outcomeFor(kind provider.ErrorKind) provider.AttemptOutcome {
	if kind.Retryable() {
		return provider.OutcomeRetryable
	}
	return provider.OutcomeFatal
}

func classify(err error) (provider.ErrorKind, int) {
	var ae *provider.AdapterError
	if errors.As(err, &ae) {
		return ae.Kind, ae.RetryAfter
	}
	return provider.ClassifyTransportError(err), 0
}
