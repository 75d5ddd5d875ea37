package provider

import "context"

// Adapter is the per-backend HTTP contract PRRE routes over (component
// C1). It is immutable after construction except for the model
// identifier, which is hot-swappable. It touches only HTTP — it never
// mutates health or breaker state, which is the Executor's job.
type Adapter interface {
	Provider() Provider

	// Model returns the currently configured model identifier.
	Model() string
	// SetModel hot-swaps the model identifier used by subsequent calls.
	SetModel(model string)

	// Generate performs one non-streaming round trip.
	Generate(ctx context.Context, intent RequestIntent) (*ChatResponse, error)

	// OpenStream performs one streaming round trip, pushing normalized
	// Deltas to ch in arrival order. A stream that ends cleanly ends with
	// a Final=true Delta. A failure (non-2xx status, transport read error,
	// stream buffer overflow) is returned as an error, possibly after
	// some Deltas were already sent; adapters never send an Err Delta
	// themselves, the Executor synthesizes it. Malformed events are
	// dropped without a Delta.
	OpenStream(ctx context.Context, intent RequestIntent, ch chan<- Delta) error

	// DecodeStreamEvent parses one SSE payload (the concatenated `data:`
	// lines of a single event) into a normalized Delta. It returns
	// ok=false for keep-alive / non-matching frames that should be
	// dropped without producing a Delta.
	DecodeStreamEvent(payload []byte) (delta Delta, ok bool, err error)
}
