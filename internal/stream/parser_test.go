package stream

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// fakeDecoder mimics the OpenAI-family decode_stream_event shape:
// {"choices":[{"delta":{"content":"..."},"finish_reason":null}]}.
type fakeDecoder struct{}

type fakeChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (fakeDecoder) DecodeStreamEvent(payload []byte) (provider.Delta, bool, error) {
	var chunk fakeChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return provider.Delta{}, false, err
	}
	if len(chunk.Choices) == 0 {
		return provider.Delta{}, false, nil
	}
	c := chunk.Choices[0]
	final := c.FinishReason != nil
	if c.Delta.Content == "" && !final {
		return provider.Delta{}, false, nil
	}
	return provider.Delta{Content: c.Delta.Content, Final: final}, true, nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func TestParser_HappyPath(t *testing.T) {
	p := NewParser(fakeDecoder{})
	stream := "data: " + mustJSON(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{"content": "pong"}}},
	}) + "\n\ndata: [DONE]\n\n"

	deltas, err := p.Feed([]byte(stream))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "pong" || deltas[0].Final {
		t.Fatalf("unexpected first delta: %+v", deltas[0])
	}
	if !deltas[1].Final || deltas[1].Content != "" {
		t.Fatalf("unexpected final delta: %+v", deltas[1])
	}
}

func TestParser_OneByteAtATimeMatchesWholeFeed(t *testing.T) {
	stream := "data: " + mustJSON(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{"content": "a"}}},
	}) + "\n\ndata: " + mustJSON(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{"content": "b"}}},
	}) + "\n\ndata: [DONE]\n\n"

	whole := NewParser(fakeDecoder{})
	wholeDeltas, err := whole.Feed([]byte(stream))
	if err != nil {
		t.Fatalf("whole feed: %v", err)
	}

	bytewise := NewParser(fakeDecoder{})
	var byteDeltas []provider.Delta
	for i := 0; i < len(stream); i++ {
		ds, err := bytewise.Feed([]byte{stream[i]})
		if err != nil {
			t.Fatalf("byte feed at %d: %v", i, err)
		}
		byteDeltas = append(byteDeltas, ds...)
	}

	normalize := func(ds []provider.Delta) []provider.Delta {
		out := make([]provider.Delta, len(ds))
		for i, d := range ds {
			out[i] = provider.Delta{Content: d.Content, Final: d.Final, TokenCount: d.TokenCount}
		}
		return out
	}
	if !reflect.DeepEqual(normalize(wholeDeltas), normalize(byteDeltas)) {
		t.Fatalf("byte-at-a-time diverged from whole feed:\nwhole=%+v\nbyte=%+v", wholeDeltas, byteDeltas)
	}
}

func TestParser_MalformedEventDropped(t *testing.T) {
	p := NewParser(fakeDecoder{})
	var dropped int
	p.OnDrop(func(event []byte, err error) { dropped++ })

	stream := "data: not json\n\ndata: " + mustJSON(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{"content": "ok"}}},
	}) + "\n\ndata: [DONE]\n\n"

	deltas, err := p.Feed([]byte(stream))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped)
	}
	if len(deltas) != 2 || deltas[0].Content != "ok" || !deltas[1].Final {
		t.Fatalf("unexpected deltas after malformed event: %+v", deltas)
	}
}

func TestParser_CloseWithoutFinalSynthesizesFinalDelta(t *testing.T) {
	p := NewParser(fakeDecoder{})
	if _, err := p.Feed([]byte("event: ping\n\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	d, ok := p.Close()
	if !ok || !d.Final {
		t.Fatalf("expected synthesized final delta on clean close, got ok=%v d=%+v", ok, d)
	}
	if _, ok := p.Close(); ok {
		t.Fatal("second Close should be a no-op")
	}
}

func TestParser_DoneStopsProcessingFurtherFeeds(t *testing.T) {
	p := NewParser(fakeDecoder{})
	if _, err := p.Feed([]byte("data: [DONE]\n\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !p.Done() {
		t.Fatal("expected Done() after [DONE]")
	}
	deltas, err := p.Feed([]byte("data: " + mustJSON(map[string]interface{}{
		"choices": []map[string]interface{}{{"delta": map[string]string{"content": "late"}}},
	}) + "\n\n"))
	if err != nil {
		t.Fatalf("Feed after done: %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("expected no deltas after done, got %+v", deltas)
	}
}

func TestRingBuffer_OverflowReturnsError(t *testing.T) {
	rb := NewRingBuffer(16, 32)
	if err := rb.Feed(make([]byte, 64)); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestRingBuffer_PartialBytesRetainedAcrossFeeds(t *testing.T) {
	rb := NewRingBuffer(0, 0)
	_ = rb.Feed([]byte("data: partial"))
	if _, ok := rb.NextEvent(); ok {
		t.Fatal("should have no complete event yet")
	}
	_ = rb.Feed([]byte("-continued\n\n"))
	event, ok := rb.NextEvent()
	if !ok {
		t.Fatal("expected a complete event after delimiter arrives")
	}
	if string(event) != "data: partial-continued" {
		t.Fatalf("unexpected event: %q", event)
	}
}
