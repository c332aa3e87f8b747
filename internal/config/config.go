// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stocklab/internal/domain"
	"stocklab/internal/logger"
)

// Config is the top-level configuration for a backtest invocation.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging logger.Config `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Run     RunConfig     `yaml:"run"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend selects where run data lives: "memory" keeps everything
	// in-process, any other value uses Postgres for relational records
	// and ClickHouse for the series data.
	Backend       string `yaml:"backend"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// CacheConfig tunes the shared factor cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// ServerConfig holds optional listener addresses. Empty disables the
// corresponding endpoint.
type ServerConfig struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	ProgressAddr string `yaml:"progress_addr"`
}

// RunConfig is the YAML shape of the run request: the domain config plus
// dates as strings.
type RunConfig struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	domain.RunConfig `yaml:",inline"`
}

// Load reads the YAML configuration file at the given path, parses it, and
// applies environment variable overrides for the data source DSNs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if dsn := os.Getenv("STOCKLAB_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if dsn := os.Getenv("STOCKLAB_CLICKHOUSE_DSN"); dsn != "" {
		cfg.Storage.ClickHouseDSN = dsn
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	return cfg, nil
}

// ToDomain parses the run dates, applies defaults and validates. This is
// where configuration errors surface, before the run starts.
func (r RunConfig) ToDomain() (domain.RunConfig, error) {
	out := r.RunConfig

	start, err := time.Parse("2006-01-02", r.StartDate)
	if err != nil {
		return out, fmt.Errorf("config: start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", r.EndDate)
	if err != nil {
		return out, fmt.Errorf("config: end_date: %w", err)
	}
	out.StartDate = start.UTC()
	out.EndDate = end.UTC()

	out.ApplyDefaults()
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}
