package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

// scenarioBCFixture builds the two-provider Anthropic->OpenAICompat chain
// from spec §8 Scenario B/C: Anthropic ranks first on priority and falls
// back to OpenAICompat, with a breaker threshold low enough (3) to trip
// on exactly the three failures the scenario describes.
func scenarioBCFixture(t *testing.T) (*Executor, *fakeAdapter, *fakeAdapter, *breaker.Registry, *health.Registry) {
	t.Helper()

	anthropic := &fakeAdapter{p: provider.Anthropic, failTimes: 3}
	openai := &fakeAdapter{p: provider.OpenAICompat, content: "pong"}

	configs := []provider.ProviderConfig{
		{
			Provider:   provider.Anthropic,
			Priority:   10,
			MaxRetries: 2, // 3 attempts total, matching "returns 503 three times"
			TimeoutMS:  1000,
			Fallbacks:  []provider.Provider{provider.OpenAICompat},
		},
		{
			Provider:   provider.OpenAICompat,
			Priority:   5,
			MaxRetries: 2,
			TimeoutMS:  1000,
		},
	}

	breakers := breaker.NewRegistry(map[provider.Provider]int{provider.Anthropic: 3}, nil)
	healthRegistry := health.NewRegistry()
	r := router.New(configs, breakers, healthRegistry)
	e := New(r, breakers, healthRegistry, map[provider.Provider]provider.Adapter{
		provider.Anthropic:    anthropic,
		provider.OpenAICompat: openai,
	}, configs, zap.NewNop())

	return e, anthropic, openai, breakers, healthRegistry
}

// TestExecutor_Chat_ScenarioB_FallbackOnRepeated503sExhaustsRetries seeds
// spec §8 Scenario B: Anthropic fails three times in a row (exhausting
// its retry budget), OpenAICompat succeeds, and the caller sees only
// OpenAICompat's Deltas.
func TestExecutor_Chat_ScenarioB_FallbackOnRepeated503sExhaustsRetries(t *testing.T) {
	e, anthropic, openai, breakers, healthRegistry := scenarioBCFixture(t)

	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion}))

	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.True(t, last.Final)
	assert.False(t, last.HasErr)

	for _, d := range deltas {
		if d.Content != "" {
			assert.Equal(t, "pong", d.Content, "caller must see only OpenAICompat's content, not a partial Anthropic delta")
		}
	}

	assert.Equal(t, 3, anthropic.calls, "Anthropic should be attempted exactly 3 times before its retry budget is exhausted")
	assert.Equal(t, 1, openai.calls, "OpenAICompat should succeed on its first attempt")

	now := time.Now()
	anthropicStat := healthRegistry.Get(provider.Anthropic, now)
	assert.Equal(t, uint32(3), anthropicStat.ConsecutiveFailures)
	assert.False(t, anthropicStat.Healthy)

	anthropicBreaker := breakers.Get(provider.Anthropic)
	require.NotNil(t, anthropicBreaker)
	assert.Equal(t, breaker.Open, anthropicBreaker.State(), "3 consecutive failures at threshold 3 must open Anthropic's breaker")
}

// TestExecutor_Chat_ScenarioC_BreakerShortCircuitsStillCoolingDownPreferred
// seeds spec §8 Scenario C: immediately after Scenario B, a new
// Anthropic-preferred request must bypass Anthropic (still cooling down)
// without issuing a single outbound call, and proceed straight to
// OpenAICompat.
func TestExecutor_Chat_ScenarioC_BreakerShortCircuitsStillCoolingDownPreferred(t *testing.T) {
	e, anthropic, openai, breakers, _ := scenarioBCFixture(t)

	// Run Scenario B first to trip Anthropic's breaker open.
	drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion}))
	require.Equal(t, breaker.Open, breakers.Get(provider.Anthropic).State())
	callsAfterB := anthropic.calls

	preferred := provider.Anthropic
	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{
		Capability:        provider.ChatCompletion,
		PreferredProvider: &preferred,
	}))

	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.True(t, last.Final)
	assert.False(t, last.HasErr)
	for _, d := range deltas {
		if d.Content != "" {
			assert.Equal(t, "pong", d.Content)
		}
	}

	assert.Equal(t, callsAfterB, anthropic.calls, "a still-cooling-down preferred provider must receive zero outbound calls")
	assert.Equal(t, 2, openai.calls, "OpenAICompat serves both the Scenario B fallback and the Scenario C bypass request")
	assert.Equal(t, breaker.Open, breakers.Get(provider.Anthropic).State(), "bypassing a provider must not itself change its breaker state")
}
