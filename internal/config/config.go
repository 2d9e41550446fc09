// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PacingConfig bounds the adaptive rate governor.
type PacingConfig struct {
	MinConcurrency       int     `mapstructure:"min_concurrency"`
	MaxConcurrency       int     `mapstructure:"max_concurrency"`
	MinDelaySeconds      float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds      float64 `mapstructure:"max_delay_seconds"`
	HistorySize          int     `mapstructure:"history_size"`
	ThrottleThresholdPct float64 `mapstructure:"throttle_threshold_pct"`
}

// HarvestConfig governs the outer loop.
type HarvestConfig struct {
	ChunkSize        int `mapstructure:"chunk_size"`
	HibernateMinutes int `mapstructure:"hibernate_minutes"`
}

// HTTPConfig configures the store client.
type HTTPConfig struct {
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	RetryAttempts       int    `mapstructure:"retry_attempts"`
	RetryBackoffSeconds int    `mapstructure:"retry_backoff_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
	BaseURL             string `mapstructure:"base_url"`
}

// CatalogConfig locates the identifier universe.
type CatalogConfig struct {
	SourcePath string `mapstructure:"source_path"`
	CachePath  string `mapstructure:"cache_path"`
	Refresh    bool   `mapstructure:"refresh"`
}

// OutputConfig sets ledger paths and batching.
type OutputConfig struct {
	ValidPath      string `mapstructure:"valid_path"`
	InvalidPath    string `mapstructure:"invalid_path"`
	SchemaPath     string `mapstructure:"schema_path"`
	BatchThreshold int    `mapstructure:"batch_threshold"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("pacing.min_concurrency", 5)
	v.SetDefault("pacing.max_concurrency", 8)
	v.SetDefault("pacing.min_delay_seconds", 3.0)
	v.SetDefault("pacing.max_delay_seconds", 7.0)
	v.SetDefault("pacing.history_size", 100)
	v.SetDefault("pacing.throttle_threshold_pct", 7.5)
	v.SetDefault("harvest.chunk_size", 100)
	v.SetDefault("harvest.hibernate_minutes", 30)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.retry_attempts", 3)
	v.SetDefault("http.retry_backoff_seconds", 30)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("http.base_url", "https://store.steampowered.com")
	v.SetDefault("catalog.source_path", "data/steam_catalog.json")
	v.SetDefault("catalog.cache_path", "data/all_app_ids.txt")
	v.SetDefault("catalog.refresh", false)
	v.SetDefault("output.valid_path", "data/steam_games_detailed.jsonl")
	v.SetDefault("output.invalid_path", "data/steam_games_errors.jsonl")
	v.SetDefault("output.schema_path", "schema.json")
	v.SetDefault("output.batch_threshold", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	p := c.Pacing
	if p.MinConcurrency <= 0 || p.MaxConcurrency < p.MinConcurrency {
		return fmt.Errorf("pacing concurrency bounds must satisfy 0 < min <= max")
	}
	if p.MinDelaySeconds <= 0 || p.MaxDelaySeconds < p.MinDelaySeconds {
		return fmt.Errorf("pacing delay bounds must satisfy 0 < min <= max")
	}
	if p.HistorySize <= 0 {
		return fmt.Errorf("pacing.history_size must be > 0")
	}
	if p.ThrottleThresholdPct <= 0 || p.ThrottleThresholdPct >= 100 {
		return fmt.Errorf("pacing.throttle_threshold_pct must be in (0, 100)")
	}
	if c.Harvest.ChunkSize <= 0 {
		return fmt.Errorf("harvest.chunk_size must be > 0")
	}
	if c.Harvest.HibernateMinutes <= 0 {
		return fmt.Errorf("harvest.hibernate_minutes must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Output.BatchThreshold <= 0 {
		return fmt.Errorf("output.batch_threshold must be > 0")
	}
	for name, path := range map[string]string{
		"catalog.source_path": c.Catalog.SourcePath,
		"catalog.cache_path":  c.Catalog.CachePath,
		"output.valid_path":   c.Output.ValidPath,
		"output.invalid_path": c.Output.InvalidPath,
		"output.schema_path":  c.Output.SchemaPath,
	} {
		if path == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryBackoff converts the retry backoff step into a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.HTTP.RetryBackoffSeconds) * time.Second
}

// MinDelay converts the pacing delay floor into a duration.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Pacing.MinDelaySeconds * float64(time.Second))
}

// MaxDelay converts the pacing delay ceiling into a duration.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Pacing.MaxDelaySeconds * float64(time.Second))
}

// HibernateCooldown converts the hibernation window into a duration.
func (c Config) HibernateCooldown() time.Duration {
	return time.Duration(c.Harvest.HibernateMinutes) * time.Minute
}
