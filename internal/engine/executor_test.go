package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

// fakeAdapter is a scriptable provider.Adapter for executor tests.
type fakeAdapter struct {
	p         provider.Provider
	failTimes int // number of calls (OpenStream or Generate) that fail before succeeding
	calls     int
	content   string
}

func (f *fakeAdapter) Provider() provider.Provider { return f.p }
func (f *fakeAdapter) Model() string               { return "test-model" }
func (f *fakeAdapter) SetModel(string)             {}

func (f *fakeAdapter) Generate(ctx context.Context, intent provider.RequestIntent) (*provider.ChatResponse, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, &provider.AdapterError{Kind: provider.KindProviderUnavailable, Message: "boom"}
	}
	return &provider.ChatResponse{Content: f.content}, nil
}

func (f *fakeAdapter) OpenStream(ctx context.Context, intent provider.RequestIntent, ch chan<- provider.Delta) error {
	f.calls++
	if f.calls <= f.failTimes {
		return &provider.AdapterError{Kind: provider.KindProviderUnavailable, Message: "boom"}
	}
	ch <- provider.Delta{Content: f.content}
	ch <- provider.Delta{Final: true}
	return nil
}

func (f *fakeAdapter) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	return provider.Delta{}, false, nil
}

func newTestExecutor(t *testing.T, adapters map[provider.Provider]*fakeAdapter) *Executor {
	t.Helper()
	var configs []provider.ProviderConfig
	adapterMap := make(map[provider.Provider]provider.Adapter, len(adapters))
	for p, a := range adapters {
		configs = append(configs, provider.ProviderConfig{
			Provider:   p,
			Priority:   5,
			TimeoutMS:  1000,
			MaxRetries: 2,
		})
		adapterMap[p] = a
	}
	breakers := breaker.NewRegistry(nil, map[provider.Provider]time.Duration{})
	healthRegistry := health.NewRegistry()
	r := router.New(configs, breakers, healthRegistry)
	return New(r, breakers, healthRegistry, adapterMap, configs, zap.NewNop())
}

func drain(ch <-chan provider.Delta) []provider.Delta {
	var out []provider.Delta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestExecutor_Chat_HappyPathEndsWithSingleFinalDelta(t *testing.T) {
	a := &fakeAdapter{p: provider.OpenAICompat, content: "hello"}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.OpenAICompat: a})

	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion}))

	finals := 0
	for i, d := range deltas {
		if d.Final {
			finals++
			if i != len(deltas)-1 {
				t.Fatalf("final delta must be the last element, got it at index %d of %d", i, len(deltas))
			}
		}
	}
	if finals != 1 {
		t.Fatalf("expected exactly one final delta, got %d", finals)
	}
	if deltas[0].Content != "hello" {
		t.Fatalf("unexpected content: %+v", deltas[0])
	}
}

func TestExecutor_Chat_RetriesThenSucceeds(t *testing.T) {
	a := &fakeAdapter{p: provider.OpenAICompat, failTimes: 1, content: "ok"}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.OpenAICompat: a})

	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion}))
	if len(deltas) == 0 || deltas[len(deltas)-1].Final == false {
		t.Fatalf("expected a successful retry to end in a final delta, got %+v", deltas)
	}
	if a.calls != 2 {
		t.Fatalf("expected exactly 2 calls (1 failure + 1 success), got %d", a.calls)
	}
}

func TestExecutor_Chat_AllProvidersFailDegrades(t *testing.T) {
	a := &fakeAdapter{p: provider.OpenAICompat, failTimes: 100}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.OpenAICompat: a})

	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion}))
	if len(deltas) == 0 {
		t.Fatal("expected a degraded offline sequence, got nothing")
	}
	if !deltas[len(deltas)-1].Final {
		t.Fatal("degraded sequence must still end with a final delta")
	}
}

func TestExecutor_Chat_NonChatCapabilitySurfacesError(t *testing.T) {
	a := &fakeAdapter{p: provider.XAI, failTimes: 100}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.XAI: a})

	deltas := drain(e.Chat(context.Background(), provider.RequestIntent{Capability: provider.CodeCompletion}))
	last := deltas[len(deltas)-1]
	if !last.Final || !last.HasErr {
		t.Fatalf("expected a structured error on the final delta, got %+v", last)
	}
}

func TestExecutor_Complete_HappyPath(t *testing.T) {
	a := &fakeAdapter{p: provider.Anthropic, content: "done"}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.Anthropic: a})

	text, err := e.Complete(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "done" {
		t.Fatalf("unexpected completion text: %q", text)
	}
}

func TestExecutor_Status_ReflectsBreakerState(t *testing.T) {
	a := &fakeAdapter{p: provider.OpenAICompat, failTimes: 100}
	e := newTestExecutor(t, map[provider.Provider]*fakeAdapter{provider.OpenAICompat: a})

	for i := 0; i < breaker.DefaultFailureThreshold+3; i++ {
		_, _ = e.Complete(context.Background(), provider.RequestIntent{Capability: provider.ChatCompletion})
	}

	views := e.Status()
	found := false
	for _, v := range views {
		if v.ProviderID == provider.OpenAICompat {
			found = true
			if v.BreakerState != breaker.Open {
				t.Fatalf("expected breaker open after repeated failures, got %v", v.BreakerState)
			}
		}
	}
	if !found {
		t.Fatal("expected a status view for OpenAICompat")
	}
}
