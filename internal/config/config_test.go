package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumira/research-crawler/internal/pipeline"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 4, cfg.Pipeline.MaxWorkers)
	require.Equal(t, 25, cfg.Pipeline.MaxSources)
	require.Equal(t, 10000, cfg.Pipeline.MaxContentLength)
	require.Equal(t, 50, cfg.Pipeline.MinContentLength)
	require.Equal(t, 1.0, cfg.Pipeline.MinRelevance)

	require.Equal(t, 20.0, cfg.Fetch.TimeoutSeconds)
	require.Equal(t, 3, cfg.Fetch.MaxRetries)
	require.Equal(t, 1.5, cfg.Fetch.RequestDelaySec)

	require.Equal(t, 100, cfg.Cache.EntryCap)
	require.Equal(t, int64(6_500_000_000), cfg.Cache.MemoryLimitBytes)

	require.NotEmpty(t, cfg.Patterns)
	require.Contains(t, cfg.Patterns, "partisipasi_smk")
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  max_workers: 8
  max_sources: 5
fetch:
  request_delay_seconds: 0.1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Pipeline.MaxWorkers)
	require.Equal(t, 5, cfg.Pipeline.MaxSources)
	require.Equal(t, 0.1, cfg.Fetch.RequestDelaySec)

	// Untouched keys keep their defaults.
	require.Equal(t, 3, cfg.Fetch.MaxRetries)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		field  string
		mutate func(*Config)
	}{
		{"zero workers", "pipeline.max_workers", func(c *Config) { c.Pipeline.MaxWorkers = 0 }},
		{"zero sources", "pipeline.max_sources", func(c *Config) { c.Pipeline.MaxSources = 0 }},
		{"negative content cap", "pipeline.max_content_length", func(c *Config) { c.Pipeline.MaxContentLength = -1 }},
		{"relevance above scale", "pipeline.min_relevance_score", func(c *Config) { c.Pipeline.MinRelevance = 6 }},
		{"zero timeout", "fetch.timeout_seconds", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }},
		{"negative retries", "fetch.max_retries", func(c *Config) { c.Fetch.MaxRetries = -1 }},
		{"negative delay", "fetch.request_delay_seconds", func(c *Config) { c.Fetch.RequestDelaySec = -1 }},
		{"zero cache cap", "cache.entry_cap", func(c *Config) { c.Cache.EntryCap = 0 }},
		{"zero memory limit", "cache.memory_limit_bytes", func(c *Config) { c.Cache.MemoryLimitBytes = 0 }},
		{"no metric patterns", "metric_patterns", func(c *Config) { c.Patterns = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *pipeline.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "20s", cfg.FetchTimeout().String())
	require.Equal(t, "1.5s", cfg.RequestDelay().String())
	require.Equal(t, "0s", cfg.RunTimeout().String())
}
