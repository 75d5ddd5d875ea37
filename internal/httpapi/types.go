package httpapi

import "github.com/GhostKellz/zeke-sub004/internal/provider"

// ChatRequest is PRRE's request envelope for both POST /v1/chat
// (streaming) and POST /v1/complete (non-streaming). It intentionally
// mirrors the OpenAI chat-completions shape so existing clients need
// only repoint their base URL.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages" binding:"required"`
	Capability  string        `json:"capability,omitempty"` // defaults to chat_completion
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Provider    string        `json:"provider,omitempty"` // pins RequestIntent.PreferredProvider
	Race        bool          `json:"race,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r ChatRequest) toIntent(requestID string) (provider.RequestIntent, error) {
	capability := provider.ChatCompletion
	if r.Capability != "" {
		c, ok := parseCapability(r.Capability)
		if !ok {
			return provider.RequestIntent{}, errUnknownCapability(r.Capability)
		}
		capability = c
	}

	messages := make([]provider.ChatMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, provider.ChatMessage{Role: provider.Role(m.Role), Content: m.Content})
	}

	intent := provider.RequestIntent{
		RequestID:   requestID,
		Capability:  capability,
		Messages:    messages,
		ModelHint:   r.Model,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Race:        r.Race,
	}

	if r.Provider != "" {
		p, ok := provider.ParseProvider(r.Provider)
		if !ok {
			return provider.RequestIntent{}, errUnknownProvider(r.Provider)
		}
		intent.PreferredProvider = &p
	}

	return intent, nil
}

func parseCapability(s string) (provider.Capability, bool) {
	switch s {
	case "chat_completion":
		return provider.ChatCompletion, true
	case "code_completion":
		return provider.CodeCompletion, true
	case "code_analysis":
		return provider.CodeAnalysis, true
	case "code_explanation":
		return provider.CodeExplanation, true
	case "refactor":
		return provider.Refactor, true
	case "test_gen":
		return provider.TestGen, true
	case "streaming":
		return provider.Streaming, true
	default:
		return 0, false
	}
}

// ChatStreamChunk is one SSE-framed chunk of a /v1/chat response,
// shaped like an OpenAI chat.completion.chunk so existing SSE clients
// parse it without changes.
type ChatStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []chatStreamChoice `json:"choices"`
	Error   *chunkError        `json:"error,omitempty"`
}

type chatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        chatStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type chatStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CompleteResponse is the body of POST /v1/complete.
type CompleteResponse struct {
	Content string `json:"content"`
}
