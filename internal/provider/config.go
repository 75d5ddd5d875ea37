package provider

import "time"

// ProviderConfig is the per-provider policy record that drives routing
// and the executor's retry/timeout behavior. It is assembled by the
// out-of-scope config loader (env + YAML) and handed to PRRE at init.
type ProviderConfig struct {
	Provider     Provider
	Priority     uint8 // [1,10], higher preferred
	Capabilities map[Capability]bool
	MaxRPM       uint32 // advisory, enforced by the executor's rate limiter
	TimeoutMS    uint32 // hard per-attempt ceiling
	Fallbacks    []Provider

	BaseURL string
	APIKey  string
	Model   string // hot-swappable

	// Azure-only fields, read once at init from AZURE_OPENAI_DEPLOYMENT_NAME / AZURE_OPENAI_API_VERSION.
	AzureDeployment string
	AzureAPIVersion string

	MaxRetries int // default 3
}

// Timeout returns the configured per-attempt timeout as a time.Duration.
func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMS == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Retries returns the configured max retry count, defaulting to 3 per spec §4.6.
func (c ProviderConfig) Retries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// SupportsCapability reports whether this provider's policy record declares c.
func (c ProviderConfig) SupportsCapability(cap Capability) bool {
	if c.Capabilities == nil {
		return Supports(c.Provider, cap)
	}
	return c.Capabilities[cap]
}
