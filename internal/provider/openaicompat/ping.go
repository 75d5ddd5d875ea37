package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// Ping implements health.Pinger for dialects that declare a ModelsPath
// (currently only Ollama's /api/tags). Adapters without one are simply
// never registered as a Pinger by the wiring code.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.dialect.ModelsPath == "" {
		return fmt.Errorf("%s has no dedicated health endpoint", a.dialect.Provider)
	}
	base := strings.TrimRight(a.cfg.BaseURL, "/")
	if base == "" {
		base = strings.TrimRight(descriptorEndpoint(a.dialect.Provider), "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+a.dialect.ModelsPath, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models endpoint returned %d", resp.StatusCode)
	}
	var tags ollamaTags
	return json.NewDecoder(resp.Body).Decode(&tags)
}

var _ interface {
	Provider() provider.Provider
	Ping(ctx context.Context) error
} = (*Adapter)(nil)
