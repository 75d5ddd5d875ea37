package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name used for its config home.
const AppName = "prred"

// HomeDir returns the user's PRRE configuration home: ~/.prred
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures ~/.prred exists with default content. Safe to call
// on every startup — it only creates what's missing and never
// overwrites a file the operator has already edited.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{root, filepath.Join(root, "logs")}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	defaults := map[string]string{
		filepath.Join(root, "config.yaml"): defaultConfig,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("prred bootstrap complete", zap.String("home", root), zap.Int("files_created", created))
	} else {
		logger.Debug("prred home directory OK", zap.String("home", root))
	}

	return nil
}

const defaultConfig = `# prred configuration — auto-generated on first launch, edit freely.
# Env vars override the server, log and health fields here:
# PRRED_<SECTION>_<KEY>, e.g. PRRED_SERVER_PORT=9090, PRRED_LOG_LEVEL=debug.
# Entries under providers have no PRRED_* env override.

server:
  host: 127.0.0.1
  port: 8790

log:
  level: info     # debug | info | warn | error
  format: console # console | json

health:
  probe_interval: 30s

# One entry per backend you want PRRE to route to. priority is 1-10,
# higher is preferred. fallbacks names other provider entries to try
# next when this one's chain is exhausted.
providers: []
# Example:
# providers:
#   - provider: openai_compat
#     base_url: "https://api.openai.com/v1"
#     api_key: "sk-..."
#     model: "gpt-4o-mini"
#     priority: 8
#     timeout_ms: 30000
#     max_retries: 3
#     fallbacks: ["anthropic"]
#
#   - provider: anthropic
#     base_url: "https://api.anthropic.com"
#     api_key: "sk-ant-..."
#     model: "claude-sonnet-4-20250514"
#     priority: 7
`
