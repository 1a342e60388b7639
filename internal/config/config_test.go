package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zerologNop() zerolog.Logger { return zerolog.Nop() }

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingCredentialIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider kind", func(c *Config) { c.Provider.Kind = "cohere" }},
		{"empty model", func(c *Config) { c.Provider.Model = "" }},
		{"non-positive max messages", func(c *Config) { c.Session.MaxMessages = 0 }},
		{"non-positive idle expiry", func(c *Config) { c.Session.IdleExpiry = 0 }},
		{"progressive without model", func(c *Config) {
			c.Progressive.Enabled = true
			c.Progressive.Model = ""
		}},
		{"retrieval without corpus", func(c *Config) { c.Retrieval.Enabled = true }},
		{"retrieval threshold out of range", func(c *Config) {
			c.Retrieval.Enabled = true
			c.Retrieval.CorpusPath = "corpus.json"
			c.Retrieval.Threshold = 1.5
		}},
		{"port out of range", func(c *Config) { c.Gateway.Port = 99999 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider.Kind)
	assert.Equal(t, 20, cfg.Session.MaxMessages)
	assert.Equal(t, 8780, cfg.Gateway.Port)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kirin.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"provider": {"kind": "anthropic", "api_key": "sk-file", "model": "claude-sonnet-4-20250514"},
		"session": {"max_messages": 5, "idle_expiry": "10m"},
		"retrieval": {"enabled": true, "corpus_path": "corpus.json", "threshold": 0.5, "max_docs": 2},
		"gateway": {"port": 9000}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Kind)
	assert.Equal(t, "sk-file", cfg.Provider.APIKey)
	assert.Equal(t, 5, cfg.Session.MaxMessages)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleExpiry)
	assert.True(t, cfg.Retrieval.Enabled)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KIRIN_PROVIDER_API_KEY", "sk-env")
	t.Setenv("KIRIN_GATEWAY_PORT", "9100")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Provider.APIKey)
	assert.Equal(t, 9100, cfg.Gateway.Port)
}

func TestStaticInstruction(t *testing.T) {
	s := NewStaticInstruction("Be brief.")
	assert.Equal(t, "Be brief.", s.Get())
	s.Stop()
}

func TestFileInstructionLoadsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruction.txt")
	require.NoError(t, os.WriteFile(path, []byte("First version.\n"), 0o644))

	s, err := NewFileInstruction(path, "fallback", zerologNop())
	require.NoError(t, err)
	defer s.Stop()

	assert.Equal(t, "First version.", s.Get())

	require.NoError(t, os.WriteFile(path, []byte("Second version.\n"), 0o644))
	require.Eventually(t, func() bool {
		return s.Get() == "Second version."
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFileInstructionMissingFileKeepsFallback(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileInstruction(filepath.Join(dir, "absent.txt"), "fallback", zerologNop())
	require.NoError(t, err)
	defer s.Stop()

	assert.Equal(t, "fallback", s.Get())
}
