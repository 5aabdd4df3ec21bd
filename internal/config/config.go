// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lumira/research-crawler/internal/pipeline"
)

// Config captures every knob recognized by the pipeline. Values originate
// from Viper so they can come from a file, environment, or CLI flags.
type Config struct {
	Pipeline PipelineConfig      `mapstructure:"pipeline"`
	Fetch    FetchConfig         `mapstructure:"fetch"`
	Cache    CacheConfig         `mapstructure:"cache"`
	Scoring  ScoringConfig       `mapstructure:"scoring"`
	Metrics  MetricsConfig       `mapstructure:"metrics"`
	Logging  LoggingConfig       `mapstructure:"logging"`
	Patterns map[string][]string `mapstructure:"metric_patterns"`
}

// PipelineConfig governs the worker pool and result set bounds.
type PipelineConfig struct {
	MaxWorkers       int     `mapstructure:"max_workers"`
	MaxSources       int     `mapstructure:"max_sources"`
	MaxContentLength int     `mapstructure:"max_content_length"`
	MinContentLength int     `mapstructure:"min_content_length"`
	MinRelevance     float64 `mapstructure:"min_relevance_score"`
	RunTimeoutSec    float64 `mapstructure:"run_timeout_seconds"`
}

// FetchConfig configures HTTP retrieval, spacing, and retry behavior.
type FetchConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   float64 `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	RequestDelaySec  float64 `mapstructure:"request_delay_seconds"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
}

// CacheConfig bounds the in-memory content cache.
type CacheConfig struct {
	EntryCap         int   `mapstructure:"entry_cap"`
	MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`
}

// ScoringConfig holds the relevance weight table. The formula is a weighted
// sum of three normalized sub-scores; none of it is hard-coded in the
// scorer.
type ScoringConfig struct {
	KeywordWeight    float64            `mapstructure:"keyword_weight"`
	RecencyWeight    float64            `mapstructure:"recency_weight"`
	SourceTypeWeight float64            `mapstructure:"source_type_weight"`
	RecencyHorizon   int                `mapstructure:"recency_horizon_years"`
	SourceTypeTable  map[string]float64 `mapstructure:"source_type_table"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the recognized options and their defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.max_workers", 4)
	v.SetDefault("pipeline.max_sources", 25)
	v.SetDefault("pipeline.max_content_length", 10000)
	v.SetDefault("pipeline.min_content_length", 50)
	v.SetDefault("pipeline.min_relevance_score", 1.0)
	v.SetDefault("pipeline.run_timeout_seconds", 0)

	v.SetDefault("fetch.user_agent", "lumira-research-bot/2.0")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.request_delay_seconds", 1.5)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)

	v.SetDefault("cache.entry_cap", 100)
	v.SetDefault("cache.memory_limit_bytes", int64(6_500_000_000))

	v.SetDefault("scoring.keyword_weight", 2.5)
	v.SetDefault("scoring.recency_weight", 1.0)
	v.SetDefault("scoring.source_type_weight", 1.5)
	v.SetDefault("scoring.recency_horizon_years", 5)
	v.SetDefault("scoring.source_type_table", map[string]float64{
		string(pipeline.SourceGovernment):    1.0,
		string(pipeline.SourceInternational): 1.0,
		string(pipeline.SourceAcademic):      0.8,
		string(pipeline.SourceIndustry):      0.5,
		string(pipeline.SourceUnknown):       0.2,
	})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("logging.development", true)

	v.SetDefault("metric_patterns", DefaultMetricPatterns())
}

// DefaultMetricPatterns is the built-in metric keyword table for the
// vocational-education research domain. Every entry maps a metric name to
// the keywords that must appear near a numeric token to count as a match.
func DefaultMetricPatterns() map[string][]string {
	return map[string][]string{
		"partisipasi_smk": {
			"partisipasi smk", "enrollment smk", "siswa smk", "tingkat partisipasi",
		},
		"pengangguran_lulusan": {
			"pengangguran lulusan", "unemployment rate", "tingkat pengangguran",
		},
		"akses_internet": {
			"akses internet", "internet penetration", "konektivitas",
		},
		"jumlah_smk": {
			"smk sebanyak", "jumlah smk", "sekolah menengah kejuruan",
		},
		"literasi_digital": {
			"literasi digital", "digital literacy", "kemampuan digital",
		},
		"penetrasi_teknologi": {
			"penetrasi teknologi", "technology adoption", "adopsi teknologi",
		},
		"kesiapan_kerja": {
			"kesiapan kerja", "job readiness", "work readiness",
		},
	}
}

// Validate enforces required values. Violations are fatal before any work
// starts.
func (c Config) Validate() error {
	if c.Pipeline.MaxWorkers < 1 {
		return &pipeline.ConfigError{Field: "pipeline.max_workers", Err: fmt.Errorf("must be >= 1, got %d", c.Pipeline.MaxWorkers)}
	}
	if c.Pipeline.MaxSources < 1 {
		return &pipeline.ConfigError{Field: "pipeline.max_sources", Err: fmt.Errorf("must be >= 1, got %d", c.Pipeline.MaxSources)}
	}
	if c.Pipeline.MaxContentLength <= 0 {
		return &pipeline.ConfigError{Field: "pipeline.max_content_length", Err: fmt.Errorf("must be > 0, got %d", c.Pipeline.MaxContentLength)}
	}
	if c.Pipeline.MinRelevance < 0 || c.Pipeline.MinRelevance > 5 {
		return &pipeline.ConfigError{Field: "pipeline.min_relevance_score", Err: fmt.Errorf("must be within [0,5], got %v", c.Pipeline.MinRelevance)}
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return &pipeline.ConfigError{Field: "fetch.timeout_seconds", Err: fmt.Errorf("must be > 0, got %v", c.Fetch.TimeoutSeconds)}
	}
	if c.Fetch.MaxRetries < 0 {
		return &pipeline.ConfigError{Field: "fetch.max_retries", Err: fmt.Errorf("must be >= 0, got %d", c.Fetch.MaxRetries)}
	}
	if c.Fetch.RequestDelaySec < 0 {
		return &pipeline.ConfigError{Field: "fetch.request_delay_seconds", Err: fmt.Errorf("must be >= 0, got %v", c.Fetch.RequestDelaySec)}
	}
	if c.Cache.EntryCap < 1 {
		return &pipeline.ConfigError{Field: "cache.entry_cap", Err: fmt.Errorf("must be >= 1, got %d", c.Cache.EntryCap)}
	}
	if c.Cache.MemoryLimitBytes <= 0 {
		return &pipeline.ConfigError{Field: "cache.memory_limit_bytes", Err: fmt.Errorf("must be > 0, got %d", c.Cache.MemoryLimitBytes)}
	}
	if len(c.Patterns) == 0 {
		return &pipeline.ConfigError{Field: "metric_patterns", Err: fmt.Errorf("must define at least one metric")}
	}
	return nil
}

// FetchTimeout converts the configured fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds * float64(time.Second))
}

// RequestDelay converts the configured inter-request spacing into a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Fetch.RequestDelaySec * float64(time.Second))
}

// RunTimeout returns the whole-run soft deadline, zero when disabled.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutSec * float64(time.Second))
}
