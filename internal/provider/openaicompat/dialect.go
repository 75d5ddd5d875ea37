// Package openaicompat implements component C1 for every provider whose
// wire format is the OpenAI chat-completions shape: OpenAICompat, XAI,
// Ollama, Azure, and OmenRouter. A single Adapter is parameterized by a
// Dialect describing the handful of ways these backends diverge (path
// suffix, auth header, Azure's deployment/api-version injection,
// OmenRouter's routing hints) instead of five near-duplicate packages.
package openaicompat

import "github.com/GhostKellz/zeke-sub004/internal/provider"

// Dialect is the static, compile-time-known shape of one OpenAI-family
// backend's request construction and auth.
type Dialect struct {
	Provider provider.Provider

	// ChatPath is appended to BaseURL to form the completions endpoint.
	// Azure ignores this and builds its own deployment-scoped path.
	ChatPath string

	// AuthHeaderStyle mirrors provider.Descriptor.AuthHeaderStyle:
	// "bearer", "api-key", or "none".
	AuthHeaderStyle string

	// IsAzure switches buildRequestURL to Azure's
	// /openai/deployments/{deployment}/chat/completions?api-version=...
	// path shape instead of BaseURL+ChatPath.
	IsAzure bool

	// SupportsOmenRouterTags emits the optional `tags` routing-hint
	// object OmenRouter accepts alongside the standard body.
	SupportsOmenRouterTags bool

	// ModelsPath is used for the lightweight background health probe.
	// Ollama's /api/tags is the one dialect with a dedicated endpoint;
	// the rest have no cheaper check than a real completion, so they
	// leave this empty and are not registered as Pingers.
	ModelsPath string
}

var (
	OpenAICompatDialect = Dialect{
		Provider:        provider.OpenAICompat,
		ChatPath:        "/chat/completions",
		AuthHeaderStyle: "bearer",
	}

	XAIDialect = Dialect{
		Provider:        provider.XAI,
		ChatPath:        "/chat/completions",
		AuthHeaderStyle: "bearer",
	}

	OllamaDialect = Dialect{
		Provider:        provider.Ollama,
		ChatPath:        "/v1/chat/completions",
		AuthHeaderStyle: "none",
		ModelsPath:      "/api/tags",
	}

	AzureDialect = Dialect{
		Provider:        provider.Azure,
		AuthHeaderStyle: "api-key",
		IsAzure:         true,
	}

	OmenRouterDialect = Dialect{
		Provider:               provider.OmenRouter,
		ChatPath:               "/chat/completions",
		AuthHeaderStyle:        "bearer",
		SupportsOmenRouterTags: true,
	}
)
