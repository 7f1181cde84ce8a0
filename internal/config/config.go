// Package config loads application configuration from file and
// environment and installs the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/policypulse/billsync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	LegiScan LegiScanConfig `yaml:"legiscan" mapstructure:"legiscan"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LegiScanConfig holds provider API credentials and client tuning.
type LegiScanConfig struct {
	APIKey          string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL         string        `yaml:"base_url" mapstructure:"base_url"`
	MinInterval     time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoffSecs int           `yaml:"base_backoff_secs" mapstructure:"base_backoff_secs"`
}

// IngestConfig holds pipeline defaults overridable per run via flags.
type IngestConfig struct {
	Query        string `yaml:"query" mapstructure:"query"`
	MinRelevance int    `yaml:"min_relevance" mapstructure:"min_relevance"`
	Jurisdiction string `yaml:"jurisdiction" mapstructure:"jurisdiction"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and BILLSYNC_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("legiscan.base_url", "https://api.legiscan.com")
	v.SetDefault("legiscan.min_interval", "100ms")
	v.SetDefault("legiscan.max_retries", 3)
	v.SetDefault("legiscan.base_backoff_secs", 60)
	v.SetDefault("ingest.jurisdiction", "ALL")
	v.SetDefault("ingest.min_relevance", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration carries everything the given
// command mode needs. Problems are collected so a misconfigured run
// reports them all at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	needDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	needAPIKey := func() {
		if c.LegiScan.APIKey == "" {
			problems = append(problems, "legiscan.api_key is required")
		}
	}

	switch mode {
	case "ingest", "update":
		needDB()
		needAPIKey()
	case "db":
		needDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.LegiScan.MaxRetries < 0 {
		problems = append(problems, "legiscan.max_retries must be >= 0")
	}
	if c.LegiScan.MinInterval < 0 {
		problems = append(problems, "legiscan.min_interval must be >= 0")
	}
	if c.Ingest.MinRelevance < 0 || c.Ingest.MinRelevance > 100 {
		problems = append(problems, "ingest.min_relevance must be between 0 and 100")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
