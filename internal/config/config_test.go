package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.InDelta(t, 5, cfg.Anthropic.RateLimit, 0.001)
	assert.InDelta(t, 0.88, cfg.Matcher.FuzzyThreshold, 0.001)
	assert.Equal(t, 50, cfg.Linker.BatchSize)
	assert.InDelta(t, 0.05, cfg.Reformulation.NoiseGate, 0.001)
	assert.InDelta(t, 0.5, cfg.Dupes.MinScore, 0.001)
	assert.Equal(t, 10, cfg.Dupes.MaxResults)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: catalog.db
log:
  level: debug
  format: console
matcher:
  fuzzy_threshold: 0.92
linker:
  batch_size: 25
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.92, cfg.Matcher.FuzzyThreshold, 0.001)
	assert.Equal(t, 25, cfg.Linker.BatchSize)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.05, cfg.Reformulation.NoiseGate, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INGREDIENT_STORE_DRIVER", "postgres")
	t.Setenv("INGREDIENT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("INGREDIENT_SERVER_PORT", "3000")
	t.Setenv("INGREDIENT_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Matcher.FuzzyThreshold = 0.88
	cfg.Reformulation.NoiseGate = 0.05
	cfg.Linker.BatchSize = 50
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateLink_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("link"))
}

func TestValidateLink_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateCatalog_NoAnthropicNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	assert.NoError(t, cfg.Validate("catalog"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Matcher.FuzzyThreshold = 1.5
	err := cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")

	cfg.Matcher.FuzzyThreshold = 0.88
	cfg.Reformulation.NoiseGate = -0.1
	err = cfg.Validate("link")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "noise_gate")

	cfg.Reformulation.NoiseGate = 0.05
	assert.NoError(t, cfg.Validate("link"))
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
