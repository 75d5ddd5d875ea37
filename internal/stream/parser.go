package stream

import (
	"bytes"
	"time"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// EventDecoder decodes one SSE event payload (the concatenated `data:`
// lines of a single event) into a normalized Delta. Implemented by each
// dialect's Adapter (component C1); the Parser itself has no
// dialect-specific knowledge.
type EventDecoder interface {
	DecodeStreamEvent(payload []byte) (delta provider.Delta, ok bool, err error)
}

// doneMarker is the OpenAI-convention sentinel that terminates a stream
// regardless of dialect (Anthropic/OmenRouter use their own terminal
// markers handled inside the decoder instead).
var doneMarker = []byte("[DONE]")

// Parser frames an arbitrarily fragmented byte stream into Deltas by
// feeding it through a RingBuffer and handing each complete event's
// payload to an EventDecoder. It is a pure function over bytes: it
// never touches HTTP, health, or breaker state.
type Parser struct {
	ring    *RingBuffer
	decoder EventDecoder
	done    bool
	onDrop  func(event []byte, err error) // optional malformed-event hook, e.g. for debug logging
}

// NewParser creates a Parser with the default ring buffer sizing
// (16 KiB initial, 256 KiB ceiling).
func NewParser(decoder EventDecoder) *Parser {
	return &Parser{
		ring:    NewRingBuffer(0, 0),
		decoder: decoder,
	}
}

// OnDrop registers a callback invoked whenever a malformed event is
// dropped instead of failing the stream (spec §4.5 error handling).
func (p *Parser) OnDrop(fn func(event []byte, err error)) {
	p.onDrop = fn
}

// Feed appends transport bytes and returns every Delta that became
// decodable as a result, in arrival order. Once a Parser has emitted a
// Delta with Final=true it is done; further Feed calls are no-ops.
func (p *Parser) Feed(data []byte) ([]provider.Delta, error) {
	if p.done {
		return nil, nil
	}
	if err := p.ring.Feed(data); err != nil {
		return nil, err
	}

	var out []provider.Delta
	for {
		event, ok := p.ring.NextEvent()
		if !ok {
			break
		}
		delta, emitted, stop := p.processEvent(event)
		if emitted {
			out = append(out, delta)
		}
		if stop {
			p.done = true
			break
		}
	}
	return out, nil
}

// Close signals that the underlying transport ended. If the stream has
// not already terminated with a final Delta, it synthesizes one — a
// clean close with only keep-alives seen is not a timeout (spec §8
// boundary behavior), it is a normal end of stream.
func (p *Parser) Close() (provider.Delta, bool) {
	if p.done {
		return provider.Delta{}, false
	}
	p.done = true
	return provider.Delta{Final: true, Timestamp: now()}, true
}

// Done reports whether a final Delta has already been emitted.
func (p *Parser) Done() bool { return p.done }

func (p *Parser) processEvent(event []byte) (delta provider.Delta, emitted bool, stop bool) {
	payload, hasData := extractPayload(event)
	if !hasData {
		// event:, id:, or comment-only frame — retained for framing
		// bookkeeping only, never produces a Delta on its own.
		return provider.Delta{}, false, false
	}

	if bytes.Equal(payload, doneMarker) {
		return provider.Delta{Final: true, Timestamp: now()}, true, true
	}

	d, ok, err := p.decoder.DecodeStreamEvent(payload)
	if err != nil {
		if p.onDrop != nil {
			p.onDrop(event, err)
		}
		return provider.Delta{}, false, false
	}
	if !ok {
		return provider.Delta{}, false, false
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = now()
	}
	return d, true, d.Final
}

// extractPayload pulls the payload out of one SSE event's lines: the
// first `data: ` line, with any subsequent `data:` lines concatenated
// with `\n` as SSE requires.
func extractPayload(event []byte) (payload []byte, ok bool) {
	lines := bytes.Split(event, []byte("\n"))
	var parts [][]byte
	for _, line := range lines {
		switch {
		case bytes.HasPrefix(line, []byte("data: ")):
			parts = append(parts, line[len("data: "):])
		case bytes.HasPrefix(line, []byte("data:")):
			parts = append(parts, line[len("data:"):])
		default:
			// event:, id:, ":" comment/keep-alive lines are ignored here;
			// dialects that need the event type carry it redundantly in
			// the JSON payload itself (e.g. Anthropic's "type" field).
		}
	}
	if len(parts) == 0 {
		return nil, false
	}
	return bytes.Join(parts, []byte("\n")), true
}

func now() time.Time { return time.Now() }
