package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.legiscan.com", cfg.LegiScan.BaseURL)
	assert.Equal(t, 100*time.Millisecond, cfg.LegiScan.MinInterval)
	assert.Equal(t, 3, cfg.LegiScan.MaxRetries)
	assert.Equal(t, 60, cfg.LegiScan.BaseBackoffSecs)
	assert.Equal(t, "ALL", cfg.Ingest.Jurisdiction)
	assert.Equal(t, 0, cfg.Ingest.MinRelevance)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/bills
legiscan:
  api_key: test-key
  min_interval: 250ms
ingest:
  jurisdiction: CA
  min_relevance: 50
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/bills", cfg.Store.DatabaseURL)
	assert.Equal(t, "test-key", cfg.LegiScan.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.LegiScan.MinInterval)
	assert.Equal(t, "CA", cfg.Ingest.Jurisdiction)
	assert.Equal(t, 50, cfg.Ingest.MinRelevance)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.LegiScan.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
ingest:
  jurisdiction: CA
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BILLSYNC_INGEST_JURISDICTION", "NY")
	t.Setenv("BILLSYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "NY", cfg.Ingest.Jurisdiction)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("BILLSYNC_LEGISCAN_MAX_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LegiScan.MaxRetries)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validConfig returns a Config that passes validation in every mode.
func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "postgres://localhost/bills"
	cfg.LegiScan.APIKey = "test-key"
	cfg.LegiScan.MaxRetries = 3
	return cfg
}

func TestValidateIngest_AllPresent(t *testing.T) {
	assert.NoError(t, validConfig().Validate("ingest"))
}

func TestValidateIngest_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "legiscan.api_key is required")
}

func TestValidateDB_NoAPIKeyNeeded(t *testing.T) {
	cfg := validConfig()
	cfg.LegiScan.APIKey = ""

	assert.NoError(t, cfg.Validate("db"))
}

func TestValidateDB_MissingURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestValidateUpdate_NeedsBoth(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("update"))

	cfg.LegiScan.APIKey = ""
	err := cfg.Validate("update")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "legiscan.api_key is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validConfig().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	cfg := validConfig()

	cfg.LegiScan.MaxRetries = -1
	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries must be >= 0")

	cfg.LegiScan.MaxRetries = 3
	cfg.Ingest.MinRelevance = 101
	err = cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_relevance must be between 0 and 100")

	cfg.Ingest.MinRelevance = 100
	assert.NoError(t, cfg.Validate("ingest"))
}
