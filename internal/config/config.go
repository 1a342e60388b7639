package config

import (
	"fmt"
	"time"
)

// Config is the full kirin configuration.
type Config struct {
	Provider    ProviderConfig    `json:"provider" mapstructure:"provider"`
	Session     SessionConfig     `json:"session" mapstructure:"session"`
	Progressive ProgressiveConfig `json:"progressive" mapstructure:"progressive"`
	Retrieval   RetrievalConfig   `json:"retrieval" mapstructure:"retrieval"`
	Tools       ToolsConfig       `json:"tools" mapstructure:"tools"`
	Gateway     GatewayConfig     `json:"gateway" mapstructure:"gateway"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// ProviderConfig holds the upstream model endpoint settings.
type ProviderConfig struct {
	Kind    string `json:"kind" mapstructure:"kind"` // openai, anthropic
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Model   string `json:"model" mapstructure:"model"`
}

// SessionConfig holds session store settings. Instruction is the
// default instruction text; InstructionFile, when set, overrides it and
// is hot-reloaded on change.
type SessionConfig struct {
	Instruction     string        `json:"instruction" mapstructure:"instruction"`
	InstructionFile string        `json:"instruction_file" mapstructure:"instruction_file"`
	MaxMessages     int           `json:"max_messages" mapstructure:"max_messages"`
	IdleExpiry      time.Duration `json:"idle_expiry" mapstructure:"idle_expiry"`
	SweepInterval   time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// ProgressiveConfig holds the secondary-model preamble settings.
type ProgressiveConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// RetrievalConfig holds the augmentation settings.
type RetrievalConfig struct {
	Enabled        bool    `json:"enabled" mapstructure:"enabled"`
	CorpusPath     string  `json:"corpus_path" mapstructure:"corpus_path"`
	EmbeddingModel string  `json:"embedding_model" mapstructure:"embedding_model"`
	Threshold      float64 `json:"threshold" mapstructure:"threshold"`
	MaxDocs        int     `json:"max_docs" mapstructure:"max_docs"`
}

// ToolsConfig holds tool support settings.
type ToolsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// GatewayConfig holds the HTTP listener settings.
type GatewayConfig struct {
	Port int `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a configuration with every optional field set
// to its default. The provider credential has no default.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:  "openai",
			Model: "gpt-4o",
		},
		Session: SessionConfig{
			Instruction:   "You are a helpful assistant.",
			MaxMessages:   20,
			IdleExpiry:    30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Progressive: ProgressiveConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   60,
			Temperature: 0.7,
		},
		Retrieval: RetrievalConfig{
			EmbeddingModel: "text-embedding-3-small",
			Threshold:      0.35,
			MaxDocs:        3,
		},
		Gateway: GatewayConfig{
			Port: 8780,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration. A missing provider credential is
// fatal: the process must not serve requests without one.
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	switch c.Provider.Kind {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("provider.kind %q is not supported", c.Provider.Kind)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Session.MaxMessages <= 0 {
		return fmt.Errorf("session.max_messages must be positive")
	}
	if c.Session.IdleExpiry <= 0 {
		return fmt.Errorf("session.idle_expiry must be positive")
	}
	if c.Progressive.Enabled && c.Progressive.Model == "" {
		return fmt.Errorf("progressive.model is required when progressive.enabled")
	}
	if c.Retrieval.Enabled {
		if c.Retrieval.CorpusPath == "" {
			return fmt.Errorf("retrieval.corpus_path is required when retrieval.enabled")
		}
		if c.Retrieval.Threshold <= 0 || c.Retrieval.Threshold > 1 {
			return fmt.Errorf("retrieval.threshold must be in (0, 1]")
		}
		if c.Retrieval.MaxDocs <= 0 {
			return fmt.Errorf("retrieval.max_docs must be positive")
		}
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d is out of range", c.Gateway.Port)
	}
	return nil
}
