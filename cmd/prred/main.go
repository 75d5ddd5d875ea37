// Command prred is PRRE's daemon: it loads config, bootstraps
// ~/.prred, wires every provider dialect adapter behind the router and
// retry executor, and serves the HTTP API until told to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/config"
	"github.com/GhostKellz/zeke-sub004/internal/engine"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/httpapi"
	"github.com/GhostKellz/zeke-sub004/internal/logging"
	"github.com/GhostKellz/zeke-sub004/internal/metrics"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/provider/anthropic"
	"github.com/GhostKellz/zeke-sub004/internal/provider/openaicompat"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

const appName = "prred"

func main() {
	bootLogger, _ := logging.New(logging.Config{Level: "info", Format: "console"})

	if err := config.Bootstrap(bootLogger); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting prred", zap.String("name", appName))

	providerConfigs, err := cfg.ResolveProviders()
	if err != nil {
		log.Fatal("resolve providers", zap.Error(err))
	}
	if len(providerConfigs) == 0 {
		log.Warn("no providers configured — edit ~/.prred/config.yaml and restart")
	}

	adapters, pingers := buildAdapters(providerConfigs, log)

	breakerThresholds := map[provider.Provider]int{}
	breakerCoolDowns := map[provider.Provider]time.Duration{}
	breakers := breaker.NewRegistry(breakerThresholds, breakerCoolDowns)
	healthRegistry := health.NewRegistry()
	r := router.New(providerConfigs, breakers, healthRegistry)

	exec := engine.New(r, breakers, healthRegistry, adapters, providerConfigs, log)

	recorder := metrics.NewRecorder()
	exec.SetMetrics(recorder)

	prober := health.NewProber(healthRegistry, pingers, log)
	if err := prober.Start("@every " + cfg.Health.ProbeInterval.String()); err != nil {
		log.Warn("health prober did not start", zap.Error(err))
	}
	defer prober.Stop()

	watcher, err := config.NewWatcher(cfg, exec, log)
	if err != nil {
		log.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(); err != nil {
			log.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	server := httpapi.New(httpapi.Config{Host: cfg.Server.Host, Port: cfg.Server.Port, Mode: "release"}, exec, log)
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("prred stopped")
}

// buildAdapters constructs one ProviderAdapter per configured provider,
// selecting the shared openaicompat.Dialect for OpenAI-family backends
// and the standalone anthropic adapter for Anthropic, per SPEC_FULL.md
// §4.1/§9. It also collects the adapters to register as health.Pinger:
// only Ollama, the one dialect with a models-list probe.
func buildAdapters(configs []provider.ProviderConfig, log *zap.Logger) (map[provider.Provider]provider.Adapter, []health.Pinger) {
	adapters := make(map[provider.Provider]provider.Adapter, len(configs))
	var pingers []health.Pinger

	for _, cfg := range configs {
		switch cfg.Provider {
		case provider.OpenAICompat:
			a := openaicompat.New(openaicompat.OpenAICompatDialect, cfg, log)
			adapters[cfg.Provider] = a
		case provider.XAI:
			a := openaicompat.New(openaicompat.XAIDialect, cfg, log)
			adapters[cfg.Provider] = a
		case provider.Ollama:
			a := openaicompat.New(openaicompat.OllamaDialect, cfg, log)
			adapters[cfg.Provider] = a
			pingers = append(pingers, a)
		case provider.Azure:
			a := openaicompat.New(openaicompat.AzureDialect, cfg, log)
			adapters[cfg.Provider] = a
		case provider.OmenRouter:
			a := openaicompat.New(openaicompat.OmenRouterDialect, cfg, log)
			adapters[cfg.Provider] = a
		case provider.Anthropic:
			adapters[cfg.Provider] = anthropic.New(cfg, log)
		default:
			log.Warn("unrecognized provider in config, skipping", zap.String("provider", cfg.Provider.String()))
		}
	}

	return adapters, pingers
}
