// Package anthropic implements component C1 for the Anthropic Messages
// API. It does not share code with package openaicompat — the two wire
// formats diverge enough (content blocks, a top-level system field, a
// different event-typed streaming protocol) that a shared helper would
// need as many branches as it saved.
package anthropic

const anthropicVersion = "2023-06-01"

// defaultMaxTokens is applied when the caller doesn't set one — unlike
// the OpenAI family, Anthropic requires max_tokens on every request.
const defaultMaxTokens = 8192

// Request is the Anthropic Messages API request shape.
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one non-system conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a polymorphic content element. PRRE only produces and
// consumes the "text" variant: only Type and Text are decoded, and the
// fields of tool-use/tool-result/thinking blocks are ignored since
// RequestIntent has no tool-calling concept.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Response is the non-streaming Messages API response.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage reports token consumption; Anthropic has no single "total_tokens" field.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// StreamEvent is one typed SSE event from the streaming Messages API.
type StreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *DeltaBlock   `json:"delta,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	Message      *Response     `json:"message,omitempty"`
}

// DeltaBlock carries the incremental payload of a content_block_delta
// or message_delta event.
type DeltaBlock struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}
