package anthropic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
	"github.com/GhostKellz/zeke-sub004/internal/stream"
)

const readChunkSize = 4096

// Adapter is the Anthropic Messages API provider (component C1).
type Adapter struct {
	cfg    provider.ProviderConfig
	client *http.Client
	logger *zap.Logger
	model  atomic.Value // string
}

// New builds an Anthropic Adapter using the same conservative HTTP
// transport tuning as the OpenAI-family adapters.
func New(cfg provider.ProviderConfig, logger *zap.Logger) *Adapter {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("provider", provider.Anthropic.String())),
	}
	a.model.Store(cfg.Model)
	return a
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() provider.Provider { return provider.Anthropic }
func (a *Adapter) Model() string               { return a.model.Load().(string) }
func (a *Adapter) SetModel(model string)       { a.model.Store(model) }

func (a *Adapter) Generate(ctx context.Context, intent provider.RequestIntent) (*provider.ChatResponse, error) {
	body, err := json.Marshal(a.buildRequest(intent, false))
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindConfig, Message: "marshal request", Cause: err}
	}

	resp, err := a.doRequest(ctx, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindNetwork, Message: "read response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.httpError(resp, respBody)
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindInvalidResponse, Message: "parse response", Cause: err}
	}

	return &provider.ChatResponse{
		Content:    concatText(apiResp.Content),
		ModelEcho:  apiResp.Model,
		TokensUsed: apiResp.Usage.Total(),
	}, nil
}

func (a *Adapter) OpenStream(ctx context.Context, intent provider.RequestIntent, ch chan<- provider.Delta) error {
	body, err := json.Marshal(a.buildRequest(intent, true))
	if err != nil {
		return &provider.AdapterError{Kind: provider.KindConfig, Message: "marshal request", Cause: err}
	}

	resp, err := a.doRequest(ctx, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return a.httpError(resp, respBody)
	}

	watchdogDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, force-closing stream")
			resp.Body.Close()
		case <-watchdogDone:
		}
	}()
	defer close(watchdogDone)

	parser := stream.NewParser(decoderFunc(a.DecodeStreamEvent))
	parser.OnDrop(func(event []byte, err error) {
		a.logger.Debug("dropped malformed stream event", zap.ByteString("event", event), zap.Error(err))
	})

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			deltas, feedErr := parser.Feed(buf[:n])
			if feedErr != nil {
				return &provider.AdapterError{Kind: provider.KindInvalidResponse, Message: "stream buffer overflow", Cause: feedErr}
			}
			for _, d := range deltas {
				ch <- d
			}
			if parser.Done() {
				return nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if d, ok := parser.Close(); ok {
					ch <- d
				}
				return nil
			}
			return &provider.AdapterError{Kind: provider.ClassifyTransportError(readErr), Message: "stream read failed", Cause: readErr}
		}
	}
}

// DecodeStreamEvent dispatches on Anthropic's typed "type" field, which
// is present in the JSON payload itself — the generic ring-buffer
// parser never needs to see the SSE "event:" line.
func (a *Adapter) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	var ev StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return provider.Delta{}, false, err
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta == nil || ev.Delta.Type != "text_delta" {
			return provider.Delta{}, false, nil
		}
		return provider.Delta{Content: ev.Delta.Text}, true, nil
	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			tokens := 0
			if ev.Usage != nil {
				tokens = ev.Usage.Total()
			}
			return provider.Delta{Final: true, TokenCount: tokens}, true, nil
		}
		return provider.Delta{}, false, nil
	case "message_stop":
		return provider.Delta{Final: true}, true, nil
	case "message_start", "content_block_start", "content_block_stop", "ping":
		return provider.Delta{}, false, nil
	default:
		return provider.Delta{}, false, nil
	}
}

func (a *Adapter) buildRequest(intent provider.RequestIntent, streaming bool) Request {
	req := Request{
		Model:       a.Model(),
		MaxTokens:   intent.MaxTokens,
		Temperature: intent.Temperature,
		Stream:      streaming,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if intent.ModelHint != "" {
		req.Model = intent.ModelHint
	}

	// System-role messages are extracted to the top-level field and
	// never appear in Messages — Anthropic rejects a "system" role
	// message, and the teacher's handling of this was inconsistent
	// across call sites; here it is centralized and unconditional.
	var systemParts []string
	if len(intent.Messages) > 0 {
		for _, m := range intent.Messages {
			if m.Role == provider.RoleSystem {
				systemParts = append(systemParts, m.Content)
				continue
			}
			req.Messages = append(req.Messages, Message{
				Role:    string(m.Role),
				Content: []ContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	} else if intent.Prompt != "" {
		req.Messages = []Message{{Role: string(provider.RoleUser), Content: []ContentBlock{{Type: "text", Text: intent.Prompt}}}}
	}
	if len(systemParts) > 0 {
		req.System = strings.Join(systemParts, "\n\n")
	}

	return req
}

func (a *Adapter) doRequest(ctx context.Context, body []byte, streaming bool) (*http.Response, error) {
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	if base == "" {
		d, _ := provider.DescriptorFor(provider.Anthropic)
		base = d.DefaultEndpoint
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindConfig, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.ClassifyTransportError(err), Message: "request failed", Cause: err}
	}
	return resp, nil
}

func (a *Adapter) httpError(resp *http.Response, body []byte) error {
	ae := &provider.AdapterError{
		Kind:       provider.ClassifyHTTPStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("backend returned %d: %s", resp.StatusCode, truncate(body, 256)),
	}
	if ae.Kind == provider.KindRateLimit {
		ae.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return ae
}

// parseRetryAfter reads the Retry-After header as integer delta-seconds
// only (spec §9: the HTTP-date form is intentionally unsupported, to
// match observable source behavior). An empty, negative, or
// non-integer value falls back to 0, letting the executor's own 60s
// RateLimit floor apply.
func parseRetryAfter(v string) int {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

func concatText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

type decoderFunc func(payload []byte) (provider.Delta, bool, error)

func (f decoderFunc) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	return f(payload)
}
