package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// Config is PRRE's fully-resolved runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Health    HealthConfig    `mapstructure:"health"`
	Providers []ProviderEntry `mapstructure:"providers"`
}

// ServerConfig controls the HTTP API surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig controls logger construction (internal/logging.Config).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HealthConfig controls the background prober (internal/health.Prober).
type HealthConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// ProviderEntry is one YAML/env-sourced provider record, before it is
// resolved into a provider.ProviderConfig (which needs the Provider
// enum and Fallbacks resolved, not left as strings).
type ProviderEntry struct {
	Provider        string   `mapstructure:"provider"`
	BaseURL         string   `mapstructure:"base_url"`
	APIKey          string   `mapstructure:"api_key"`
	Model           string   `mapstructure:"model"`
	Priority        uint8    `mapstructure:"priority"`
	MaxRPM          uint32   `mapstructure:"max_rpm"`
	TimeoutMS       uint32   `mapstructure:"timeout_ms"`
	MaxRetries      int      `mapstructure:"max_retries"`
	Fallbacks       []string `mapstructure:"fallbacks"`
	AzureDeployment string   `mapstructure:"azure_deployment"`
	AzureAPIVersion string   `mapstructure:"azure_api_version"`
}

// Load assembles Config from, in ascending priority: built-in
// defaults, ~/.prred/config.yaml, and PRRED_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(HomeDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PRRED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8790)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("health.probe_interval", "30s")
}

// ResolveProviders converts the loaded ProviderEntry records into the
// []provider.ProviderConfig the Router and Executor consume, resolving
// fallback names to enum values and capability support from each
// entry's static descriptor.
func (c *Config) ResolveProviders() ([]provider.ProviderConfig, error) {
	out := make([]provider.ProviderConfig, 0, len(c.Providers))
	for _, e := range c.Providers {
		p, ok := provider.ParseProvider(e.Provider)
		if !ok {
			return nil, fmt.Errorf("config: unknown provider %q", e.Provider)
		}
		desc, ok := provider.DescriptorFor(p)
		if !ok {
			return nil, fmt.Errorf("config: no descriptor for provider %q", e.Provider)
		}

		fallbacks := make([]provider.Provider, 0, len(e.Fallbacks))
		for _, name := range e.Fallbacks {
			fp, ok := provider.ParseProvider(name)
			if !ok {
				return nil, fmt.Errorf("config: provider %q names unknown fallback %q", e.Provider, name)
			}
			fallbacks = append(fallbacks, fp)
		}

		if p == provider.Azure {
			if s := os.Getenv("AZURE_OPENAI_ENDPOINT"); s != "" {
				e.BaseURL = s
			}
			if s := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME"); s != "" {
				e.AzureDeployment = s
			}
			if s := os.Getenv("AZURE_OPENAI_API_VERSION"); s != "" {
				e.AzureAPIVersion = s
			}
		}

		out = append(out, provider.ProviderConfig{
			Provider:        p,
			Priority:        e.Priority,
			Capabilities:    desc.Capabilities,
			MaxRPM:          e.MaxRPM,
			TimeoutMS:       e.TimeoutMS,
			Fallbacks:       fallbacks,
			BaseURL:         e.BaseURL,
			APIKey:          e.APIKey,
			Model:           e.Model,
			AzureDeployment: e.AzureDeployment,
			AzureAPIVersion: e.AzureAPIVersion,
			MaxRetries:      e.MaxRetries,
		})
	}
	return out, nil
}

// configFilePath returns the on-disk path Load() reads from, used by
// the hot-reload watcher to know which file to watch.
func configFilePath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// fileExists is a small os.Stat wrapper kept here so reload.go doesn't
// need its own os import purely for this one check.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
