package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from a JSON file with KIRIN_* environment
// overrides.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// ~/.kirin/kirin.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

func (l *Loader) path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kirin", "kirin.json"), nil
}

// Load reads the configuration. A missing file yields the defaults;
// environment variables still apply.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("KIRIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// bindKeys registers every config key so AutomaticEnv resolves it even
// without a config file entry.
func bindKeys(v *viper.Viper) {
	keys := []string{
		"provider.kind", "provider.api_key", "provider.base_url", "provider.model",
		"session.instruction", "session.instruction_file", "session.max_messages",
		"session.idle_expiry", "session.sweep_interval",
		"progressive.enabled", "progressive.model", "progressive.max_tokens", "progressive.temperature",
		"retrieval.enabled", "retrieval.corpus_path", "retrieval.embedding_model",
		"retrieval.threshold", "retrieval.max_docs",
		"tools.enabled",
		"gateway.port",
		"logging.level", "logging.pretty",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// Load is a convenience wrapper around NewLoader(...).Load().
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
