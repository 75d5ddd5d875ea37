package openaicompat

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

// readChunkSize bounds how much of the SSE transport body is read into
// the ring buffer per iteration.
const readChunkSize = 4096

// Adapter is the shared OpenAI-family provider (component C1),
// parameterized by Dialect. It is safe for concurrent use; SetModel
// swaps the model atomically, and a request already built keeps the
// model it read.
type Adapter struct {
	dialect Dialect
	cfg     provider.ProviderConfig
	client  *http.Client
	logger  *zap.Logger
	model   atomic.Value // string
}

// New builds an Adapter for the given dialect and per-deployment config,
// using the same conservative HTTP transport tuning across every
// OpenAI-family backend.
func New(dialect Dialect, cfg provider.ProviderConfig, logger *zap.Logger) *Adapter {
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
		dialect: dialect,
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", dialect.Provider.String())),
	}
	a.model.Store(cfg.Model)
	return a
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() provider.Provider { return a.dialect.Provider }
func (a *Adapter) Model() string               { return a.model.Load().(string) }
func (a *Adapter) SetModel(model string)       { a.model.Store(model) }

// Generate performs one non-streaming round trip.
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
	if len(apiResp.Choices) == 0 {
		return nil, &provider.AdapterError{Kind: provider.KindInvalidResponse, Message: "empty choices"}
	}

	return &provider.ChatResponse{
		Content:    apiResp.Choices[0].Message.Content,
		ModelEcho:  apiResp.Model,
		TokensUsed: apiResp.Usage.Total(),
	}, nil
}

// OpenStream performs one streaming round trip, pushing normalized
// Deltas to ch. Mirrors the teacher's context-cancellation watchdog
// that force-closes the response body when ctx is done mid-stream.
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

// DecodeStreamEvent implements provider.Adapter / stream.EventDecoder
// for the OpenAI-family `choices[0].delta.content` shape.
func (a *Adapter) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return provider.Delta{}, false, err
	}
	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			return provider.Delta{TokenCount: chunk.Usage.Total()}, false, nil
		}
		return provider.Delta{}, false, nil
	}
	choice := chunk.Choices[0]
	final := choice.FinishReason != nil
	if choice.Delta.Content == "" && !final {
		return provider.Delta{}, false, nil
	}
	return provider.Delta{Content: choice.Delta.Content, Final: final}, true, nil
}

func (a *Adapter) buildRequest(intent provider.RequestIntent, streaming bool) Request {
	req := Request{
		Model:       a.Model(),
		Temperature: intent.Temperature,
		MaxTokens:   intent.MaxTokens,
		Stream:      streaming,
	}
	if streaming {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	if intent.ModelHint != "" {
		req.Model = intent.ModelHint
	}

	if len(intent.Messages) > 0 {
		for _, m := range intent.Messages {
			req.Messages = append(req.Messages, Message{Role: string(m.Role), Content: m.Content})
		}
	} else if intent.Prompt != "" {
		req.Messages = []Message{{Role: string(provider.RoleUser), Content: intent.Prompt}}
	}

	if a.dialect.SupportsOmenRouterTags {
		req.OmenRouterTags = &RoutingTags{
			Source: "prred",
		}
	}
	return req
}

func (a *Adapter) doRequest(ctx context.Context, body []byte, streaming bool) (*http.Response, error) {
	url, err := a.requestURL()
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindConfig, Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.KindConfig, Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	a.setAuthHeader(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &provider.AdapterError{Kind: provider.ClassifyTransportError(err), Message: "request failed", Cause: err}
	}
	return resp, nil
}

func (a *Adapter) requestURL() (string, error) {
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	if base == "" {
		base = strings.TrimRight(descriptorEndpoint(a.dialect.Provider), "/")
	}

	if a.dialect.IsAzure {
		if a.cfg.AzureDeployment == "" || a.cfg.AzureAPIVersion == "" {
			return "", fmt.Errorf("azure requires AZURE_OPENAI_DEPLOYMENT_NAME and AZURE_OPENAI_API_VERSION")
		}
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, a.cfg.AzureDeployment, a.cfg.AzureAPIVersion), nil
	}
	return base + a.dialect.ChatPath, nil
}

func (a *Adapter) setAuthHeader(req *http.Request) {
	switch a.dialect.AuthHeaderStyle {
	case "bearer":
		if a.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		}
	case "api-key":
		req.Header.Set("api-key", a.cfg.APIKey)
	case "none":
		// Ollama's local default has no auth.
	}
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

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

// decoderFunc adapts a bare function to stream.EventDecoder.
type decoderFunc func(payload []byte) (provider.Delta, bool, error)

func (f decoderFunc) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	return f(payload)
}

// descriptorEndpoint returns the dialect's static default endpoint,
// used when the per-deployment config leaves BaseURL unset.
func descriptorEndpoint(p provider.Provider) string {
	d, ok := provider.DescriptorFor(p)
	if !ok {
		return ""
	}
	return d.DefaultEndpoint
}
