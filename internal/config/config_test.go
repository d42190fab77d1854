package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	assert.Equal(t, 15, cfg.Engine.MaxAnomalyResults)
	assert.Equal(t, 0.1, cfg.Engine.CandidateThreshold)
	assert.Equal(t, 10, cfg.Engine.MaxFeatures)

	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)

	assert.NotEmpty(t, cfg.Database.SQLitePath)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestDefaultConfigValidates(t *testing.T) {
	assert.Empty(t, DefaultConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modifyFn func(*Config)
		field    string
	}{
		{
			name:     "invalid port",
			modifyFn: func(c *Config) { c.Server.Port = 0 },
			field:    "server.port",
		},
		{
			name:     "zero anomaly results",
			modifyFn: func(c *Config) { c.Engine.MaxAnomalyResults = 0 },
			field:    "engine.max_anomaly_results",
		},
		{
			name:     "threshold out of range",
			modifyFn: func(c *Config) { c.Engine.CandidateThreshold = 1.5 },
			field:    "engine.candidate_threshold",
		},
		{
			name:     "too few features",
			modifyFn: func(c *Config) { c.Engine.MaxFeatures = 1 },
			field:    "engine.max_features",
		},
		{
			name:     "openai without key",
			modifyFn: func(c *Config) { c.LLM.Provider = "openai" },
			field:    "llm.api_key",
		},
		{
			name:     "unknown provider",
			modifyFn: func(c *Config) { c.LLM.Provider = "skynet" },
			field:    "llm.provider",
		},
		{
			name:     "missing sqlite path",
			modifyFn: func(c *Config) { c.Database.SQLitePath = "" },
			field:    "database.sqlite_path",
		},
		{
			name:     "unknown log level",
			modifyFn: func(c *Config) { c.Logging.Level = "loud" },
			field:    "logging.level",
		},
		{
			name:     "unknown log format",
			modifyFn: func(c *Config) { c.Logging.Format = "xml" },
			field:    "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			found := false
			for _, err := range errs {
				if ve, ok := err.(*ValidationError); ok && ve.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "expected a validation error for %s", tt.field)
		})
	}
}

func TestManagerLoadDefaultsWithoutFile(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, mgr.Load(context.Background()))
	require.NoError(t, mgr.Validate(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Engine.MaxAnomalyResults)
}

func TestManagerLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9999
engine:
  max_anomaly_results: 20
llm:
  provider: openai
  api_key: test-key
  model: gpt-4-turbo
logging:
  level: debug
  format: console
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	mgr := NewManager(path)
	require.NoError(t, mgr.Load(context.Background()))
	require.NoError(t, mgr.Validate(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Engine.MaxAnomalyResults)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4-turbo", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// File values merge over defaults for untouched sections.
	assert.Equal(t, 10, cfg.Engine.MaxFeatures)
	assert.NotEmpty(t, cfg.Database.SQLitePath)
}

func TestManagerEnvOverrides(t *testing.T) {
	t.Setenv("DATALENS_LLM_API_KEY", "env-key")
	t.Setenv("DATALENS_DATABASE_SQLITE_PATH", "/tmp/env.db")

	mgr := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider, "an API key implies the openai provider")
	assert.Equal(t, "/tmp/env.db", cfg.Database.SQLitePath)
}
