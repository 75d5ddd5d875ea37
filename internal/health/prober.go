package health

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/pkg/safego"
)

// probeTimeout bounds a single background health probe so a stuck
// provider can never hold the prober's cron tick hostage.
const probeTimeout = 5 * time.Second

// Pinger is the narrow interface a provider adapter exposes for
// background probing — cheaper than a full Generate call. Dialects that
// have no dedicated health endpoint (most OpenAI-compatible ones) may
// implement it as a minimal models-list or completion request; Ollama
// uses its native /api/tags per SPEC_FULL.md §4.1 EXPANDED.
type Pinger interface {
	Provider() provider.Provider
	Ping(ctx context.Context) error
}

// Prober periodically re-checks providers whose health record has gone
// stale (no traffic for 300s), so a previously-failing provider that
// has recovered is rediscovered without waiting for user traffic to
// stumble onto it (spec §4.4 staleness + reset policy).
type Prober struct {
	registry *Registry
	pingers  []Pinger
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewProber builds a Prober over the given registry and adapters. Only
// adapters implementing Pinger are probed; others are left to recover
// purely by the optimistic 300s reset in Registry.Get.
func NewProber(registry *Registry, pingers []Pinger, logger *zap.Logger) *Prober {
	return &Prober{
		registry: registry,
		pingers:  pingers,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the background sweep at the given cron spec (e.g.
// "@every 30s") and begins running it. Each tick runs in its own
// panic-recovering goroutine via safego.Go so a misbehaving adapter
// can never take down the process.
func (p *Prober) Start(spec string) error {
	_, err := p.cron.AddFunc(spec, func() {
		safego.Go(p.logger, "health-prober-tick", p.sweep)
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the scheduler. It waits for running cron jobs to return;
// a sweep already handed to its own goroutine by a tick is not waited for.
func (p *Prober) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *Prober) sweep() {
	now := time.Now()
	stale := p.registry.AllStale(now)
	if len(stale) == 0 {
		return
	}
	staleSet := make(map[provider.Provider]bool, len(stale))
	for _, pr := range stale {
		staleSet[pr] = true
	}

	for _, pinger := range p.pingers {
		if !staleSet[pinger.Provider()] {
			continue
		}
		p.probeOne(pinger)
	}
}

func (p *Prober) probeOne(pinger Pinger) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	err := pinger.Ping(ctx)
	if err != nil {
		p.registry.RecordFailure(pinger.Provider(), time.Now())
		p.logger.Warn("background health probe failed",
			zap.String("provider", pinger.Provider().String()),
			zap.Error(err),
		)
		return
	}
	p.registry.RecordSuccess(pinger.Provider(), time.Since(start), time.Now())
	p.logger.Debug("background health probe succeeded",
		zap.String("provider", pinger.Provider().String()),
	)
}
