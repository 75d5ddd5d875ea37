package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/engine"
	"github.com/GhostKellz/zeke-sub004/internal/health"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/router"
)

type stubAdapter struct {
	content string
}

func (a *stubAdapter) Provider() provider.Provider { return provider.OpenAICompat }
func (a *stubAdapter) Model() string               { return "test-model" }
func (a *stubAdapter) SetModel(string)             {}
func (a *stubAdapter) Generate(ctx context.Context, intent provider.RequestIntent) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Content: a.content}, nil
}
func (a *stubAdapter) OpenStream(ctx context.Context, intent provider.RequestIntent, ch chan<- provider.Delta) error {
	ch <- provider.Delta{Content: a.content}
	ch <- provider.Delta{Final: true}
	return nil
}
func (a *stubAdapter) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	return provider.Delta{}, false, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfgs := []provider.ProviderConfig{{Provider: provider.OpenAICompat, Priority: 5, TimeoutMS: 1000, MaxRetries: 1}}
	breakers := breaker.NewRegistry(nil, map[provider.Provider]time.Duration{})
	healthRegistry := health.NewRegistry()
	r := router.New(cfgs, breakers, healthRegistry)
	adapters := map[provider.Provider]provider.Adapter{provider.OpenAICompat: &stubAdapter{content: "hi there"}}
	exec := engine.New(r, breakers, healthRegistry, adapters, cfgs, zap.NewNop())
	return New(Config{Host: "127.0.0.1", Port: 0, Mode: "release"}, exec, zap.NewNop())
}

func TestServer_Complete_ReturnsContent(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(ChatRequest{Messages: []chatMessage{{Role: "user", Content: "hello"}}})

	req := httptest.NewRequest(http.MethodPost, "/v1/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CompleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
}

func TestServer_Chat_StreamsSSEChunks(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(ChatRequest{Messages: []chatMessage{{Role: "user", Content: "hello"}}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("hi there")) {
		t.Fatalf("expected content in SSE stream, got %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("[DONE]")) {
		t.Fatalf("expected a terminating [DONE] event, got %s", rec.Body.String())
	}
}

func TestServer_Complete_UnknownCapabilityReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(ChatRequest{
		Messages:   []chatMessage{{Role: "user", Content: "hello"}},
		Capability: "not-a-real-capability",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServer_Status_ReturnsProviderViews(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var views []engine.ProviderHealthView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 provider view, got %d", len(views))
	}
}
