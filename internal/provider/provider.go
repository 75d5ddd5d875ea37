// Package provider defines the provider-independent data model PRRE
// routes over: the closed Provider/Capability enumerations, the static
// per-dialect descriptor table, and the ProviderAdapter contract each
// dialect package implements.
package provider

// Provider is the closed identity enumeration for a remote LLM backend.
type Provider int

const (
	OpenAICompat Provider = iota
	Anthropic
	XAI
	Azure
	Ollama
	OmenRouter

	numProviders // sentinel, not a real provider
)

// String returns the canonical lowercase name used in config, logs, and metrics labels.
func (p Provider) String() string {
	switch p {
	case OpenAICompat:
		return "openai_compat"
	case Anthropic:
		return "anthropic"
	case XAI:
		return "xai"
	case Azure:
		return "azure"
	case Ollama:
		return "ollama"
	case OmenRouter:
		return "omenrouter"
	default:
		return "unknown"
	}
}

// Count returns the number of real Provider values, for sizing fixed-size per-provider arrays.
func Count() int { return int(numProviders) }

// Valid reports whether p is one of the closed enumeration members.
func (p Provider) Valid() bool { return p >= 0 && p < numProviders }

// Capability is the closed enumeration of task classes a provider may support.
type Capability int

const (
	ChatCompletion Capability = iota
	CodeCompletion
	CodeAnalysis
	CodeExplanation
	Refactor
	TestGen
	Streaming
)

func (c Capability) String() string {
	switch c {
	case ChatCompletion:
		return "chat_completion"
	case CodeCompletion:
		return "code_completion"
	case CodeAnalysis:
		return "code_analysis"
	case CodeExplanation:
		return "code_explanation"
	case Refactor:
		return "refactor"
	case TestGen:
		return "test_gen"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Descriptor is the static, compile-time-known shape of a dialect: its
// wire family, default endpoint, auth style, and whether it streams
// natively. It does not carry secrets or per-deployment config — that
// lives in ProviderConfig.
type Descriptor struct {
	Provider        Provider
	DefaultEndpoint string
	AuthHeaderStyle string // "bearer", "api-key", "x-api-key", "none"
	StreamsNatively bool
	Capabilities    map[Capability]bool
}

var descriptors = map[Provider]Descriptor{
	OpenAICompat: {
		Provider:        OpenAICompat,
		DefaultEndpoint: "https://api.openai.com/v1",
		AuthHeaderStyle: "bearer",
		StreamsNatively: true,
		Capabilities:    allCapabilities(),
	},
	Anthropic: {
		Provider:        Anthropic,
		DefaultEndpoint: "https://api.anthropic.com",
		AuthHeaderStyle: "x-api-key",
		StreamsNatively: true,
		Capabilities:    allCapabilities(),
	},
	XAI: {
		Provider:        XAI,
		DefaultEndpoint: "https://api.x.ai/v1",
		AuthHeaderStyle: "bearer",
		StreamsNatively: true,
		Capabilities: capSet(
			ChatCompletion, CodeCompletion, CodeExplanation, Streaming,
		),
	},
	Azure: {
		Provider:        Azure,
		DefaultEndpoint: "", // requires AZURE_OPENAI_ENDPOINT; no sane global default
		AuthHeaderStyle: "api-key",
		StreamsNatively: true,
		Capabilities:    allCapabilities(),
	},
	Ollama: {
		Provider:        Ollama,
		DefaultEndpoint: "http://localhost:11434",
		AuthHeaderStyle: "none",
		StreamsNatively: true,
		Capabilities: capSet(
			ChatCompletion, CodeCompletion, CodeExplanation, Streaming,
		),
	},
	OmenRouter: {
		Provider:        OmenRouter,
		DefaultEndpoint: "https://openrouter.ai/api/v1",
		AuthHeaderStyle: "bearer",
		StreamsNatively: true,
		Capabilities:    allCapabilities(),
	},
}

func allCapabilities() map[Capability]bool {
	return capSet(ChatCompletion, CodeCompletion, CodeAnalysis, CodeExplanation, Refactor, TestGen, Streaming)
}

func capSet(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// DescriptorFor returns the static descriptor for p.
func DescriptorFor(p Provider) (Descriptor, bool) {
	d, ok := descriptors[p]
	return d, ok
}

// Supports reports whether provider p's static descriptor declares capability c.
func Supports(p Provider, c Capability) bool {
	d, ok := descriptors[p]
	if !ok {
		return false
	}
	return d.Capabilities[c]
}

// ParseProvider maps a config/CLI provider name (as produced by
// Provider.String()) back to its enum value.
func ParseProvider(name string) (Provider, bool) {
	for p := OpenAICompat; p < numProviders; p++ {
		if p.String() == name {
			return p, true
		}
	}
	return 0, false
}
