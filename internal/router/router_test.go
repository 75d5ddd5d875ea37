package router

import (
	"testing"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

func baseConfigs() []provider.ProviderConfig {
	return []provider.ProviderConfig{
		{Provider: provider.OpenAICompat, Priority: 8, Fallbacks: []provider.Provider{provider.Anthropic}},
		{Provider: provider.Anthropic, Priority: 7, Fallbacks: []provider.Provider{provider.OpenAICompat}},
		{Provider: provider.XAI, Priority: 5},
	}
}

func TestRouter_SelectsHighestScoringPrimary(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	r := New(baseConfigs(), breakers, h)

	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(chain.Providers) == 0 || chain.Providers[0] != provider.OpenAICompat {
		t.Fatalf("expected OpenAICompat (highest priority) as primary, got %+v", chain)
	}
	if chain.Degraded {
		t.Fatal("should not be degraded when candidates are healthy")
	}
}

func TestRouter_UnhealthyProviderPenalizedNotExcluded(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	now := time.Now()
	// Drive OpenAICompat unhealthy (3 consecutive failures) without tripping its breaker.
	h.RecordFailure(provider.OpenAICompat, now)
	h.RecordFailure(provider.OpenAICompat, now)
	h.RecordFailure(provider.OpenAICompat, now)

	r := New(baseConfigs(), breakers, h)
	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chain.Providers[0] != provider.Anthropic {
		t.Fatalf("expected Anthropic to outrank unhealthy OpenAICompat, got %+v", chain)
	}
}

func TestRouter_PreferredProviderPrepended(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	r := New(baseConfigs(), breakers, h)

	preferred := provider.XAI
	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion, PreferredProvider: &preferred})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chain.Providers[0] != provider.XAI {
		t.Fatalf("expected preferred provider prepended as chain head, got %+v", chain.Providers)
	}
}

func TestRouter_PreferredProviderFilteredWhenCapabilityUnsupported(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	configs := []provider.ProviderConfig{
		{Provider: provider.OpenAICompat, Priority: 8},
		{Provider: provider.XAI, Priority: 5}, // XAI's static descriptor lacks TestGen
	}
	r := New(configs, breakers, h)

	preferred := provider.XAI
	chain, err := r.Select(provider.RequestIntent{Capability: provider.TestGen, PreferredProvider: &preferred})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chain.Providers[0] != provider.OpenAICompat {
		t.Fatalf("expected preferred provider lacking the capability to be dropped, not prepended, got %+v", chain.Providers)
	}
	for _, p := range chain.Providers {
		if p == provider.XAI {
			t.Fatal("preferred provider without the requested capability must not appear in the chain")
		}
	}
}

func TestRouter_PreferredProviderUsesItsOwnFallbacks(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	configs := []provider.ProviderConfig{
		{Provider: provider.OpenAICompat, Priority: 8, Fallbacks: []provider.Provider{provider.Anthropic}},
		{Provider: provider.Anthropic, Priority: 7, Fallbacks: []provider.Provider{provider.OpenAICompat}},
		{Provider: provider.XAI, Priority: 5, Fallbacks: []provider.Provider{provider.Ollama}},
		{Provider: provider.Ollama, Priority: 3},
	}
	r := New(configs, breakers, h)

	preferred := provider.XAI
	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion, PreferredProvider: &preferred})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(chain.Providers) != 2 || chain.Providers[0] != provider.XAI || chain.Providers[1] != provider.Ollama {
		t.Fatalf("expected [XAI, Ollama] using the preferred provider's own fallback list, got %+v", chain.Providers)
	}
}

func TestRouter_PreferredProviderSkippedWhenBreakerOpen(t *testing.T) {
	breakers := breaker.NewRegistry(map[provider.Provider]int{provider.XAI: 1}, nil)
	breakers.Get(provider.XAI).RecordFailure()

	h := health.NewRegistry()
	r := New(baseConfigs(), breakers, h)

	preferred := provider.XAI
	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion, PreferredProvider: &preferred})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if chain.Providers[0] == provider.XAI {
		t.Fatal("preferred provider with an open breaker must not be prepended as chain head")
	}
}

func TestRouter_NoCapableProviderWhenCapabilityUnsupported(t *testing.T) {
	breakers := breaker.NewRegistry(nil, nil)
	h := health.NewRegistry()
	configs := []provider.ProviderConfig{
		{Provider: provider.XAI, Priority: 5}, // XAI's static descriptor lacks TestGen
	}
	r := New(configs, breakers, h)

	_, err := r.Select(provider.RequestIntent{Capability: provider.TestGen})
	if err != ErrNoCapableProvider {
		t.Fatalf("expected ErrNoCapableProvider, got %v", err)
	}
}

func TestRouter_AllOpenYieldsDegradedChain(t *testing.T) {
	breakers := breaker.NewRegistry(
		map[provider.Provider]int{provider.OpenAICompat: 1, provider.Anthropic: 1, provider.XAI: 1},
		nil,
	)
	breakers.Get(provider.OpenAICompat).RecordFailure()
	breakers.Get(provider.Anthropic).RecordFailure()
	breakers.Get(provider.XAI).RecordFailure()

	h := health.NewRegistry()
	r := New(baseConfigs(), breakers, h)

	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion})
	if err != nil {
		t.Fatalf("expected a degraded chain, not an error: %v", err)
	}
	if !chain.Degraded {
		t.Fatal("expected chain to be marked degraded when every candidate is open")
	}
	if len(chain.Providers) == 0 {
		t.Fatal("degraded chain must still be non-empty")
	}
}

func TestRouter_FallbacksExcludeOpenBreakers(t *testing.T) {
	breakers := breaker.NewRegistry(map[provider.Provider]int{provider.Anthropic: 1}, nil)
	breakers.Get(provider.Anthropic).RecordFailure() // opens Anthropic, primary's only fallback

	h := health.NewRegistry()
	r := New(baseConfigs(), breakers, h)

	chain, err := r.Select(provider.RequestIntent{Capability: provider.ChatCompletion})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, p := range chain.Providers {
		if p == provider.Anthropic {
			t.Fatal("open fallback should have been filtered out of the chain")
		}
	}
}
