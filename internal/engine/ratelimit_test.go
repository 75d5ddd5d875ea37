package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

func TestBuildLimiters_SkipsProvidersWithoutMaxRPM(t *testing.T) {
	configs := []provider.ProviderConfig{
		{Provider: provider.OpenAICompat, MaxRPM: 0},
		{Provider: provider.Anthropic, MaxRPM: 120},
	}
	limiters := buildLimiters(configs)

	_, hasOpenAI := limiters[provider.OpenAICompat]
	assert.False(t, hasOpenAI, "expected no limiter for a provider with MaxRPM=0")
	_, hasAnthropic := limiters[provider.Anthropic]
	assert.True(t, hasAnthropic, "expected a limiter for a provider with MaxRPM>0")
}

func TestWaitForRateLimit_UnlimitedProviderProceedsImmediately(t *testing.T) {
	e := &Executor{limiters: buildLimiters(nil)}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	assert.NoError(t, e.waitForRateLimit(ctx, provider.OpenAICompat))
}

func TestWaitForRateLimit_ThrottlesBeyondBurst(t *testing.T) {
	configs := []provider.ProviderConfig{
		{Provider: provider.OpenAICompat, MaxRPM: 60}, // 1/sec, burst 2
	}
	e := &Executor{limiters: buildLimiters(configs)}
	ctx := context.Background()

	// The burst of 2 should pass immediately.
	for i := 0; i < 2; i++ {
		assert.NoError(t, e.waitForRateLimit(ctx, provider.OpenAICompat))
	}

	// The third call exceeds the burst and must wait for the next token,
	// so a context that's already expired should be rejected.
	expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	assert.Error(t, e.waitForRateLimit(expired, provider.OpenAICompat))
}
