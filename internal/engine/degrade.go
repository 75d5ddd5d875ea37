package engine

import "github.com/GhostKellz/zeke-sub004/internal/provider"

// offlineMessage is the fixed, localized degradation message sent when
// a ChatCompletion chain is exhausted (spec §4.6 graceful degradation).
const offlineMessage = "service temporarily unavailable: all configured providers are unreachable"

// degrade implements the chain-exhausted fallback: ChatCompletion gets
// a synthetic offline Delta sequence instead of a propagated error;
// every other capability surfaces the structured AllProvidersFailed error.
func (e *Executor) degrade(intent provider.RequestIntent, out chan<- provider.Delta) {
	if intent.Capability == provider.ChatCompletion {
		out <- provider.Delta{Content: offlineMessage}
		out <- provider.Delta{Final: true}
		return
	}
	out <- provider.Delta{Final: true, Err: provider.KindProviderUnavailable, HasErr: true, Content: ErrAllProvidersFailed.Error()}
}
