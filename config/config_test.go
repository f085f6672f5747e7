package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weftflow/weft/types"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, types.Duration(10*time.Minute), cfg.Engine.Timeout)
	assert.Equal(t, 1, cfg.Engine.Concurrency)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  timeout: 5m
  concurrency: 3
  rate_limit_rps: 2.5
providers:
  ollama:
    base_url: http://gpu-box:11434
  vllm:
    base_url: https://inference.internal:8000
    api_key_env: VLLM_KEY
    timeout: 90s
retry:
  max_retries: 4
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, types.Duration(5*time.Minute), cfg.Engine.Timeout)
	assert.Equal(t, 3, cfg.Engine.Concurrency)
	assert.InDelta(t, 2.5, cfg.Engine.RateLimitRPS, 1e-9)
	assert.Equal(t, "http://gpu-box:11434", cfg.Providers["ollama"].BaseURL)
	assert.Equal(t, "VLLM_KEY", cfg.Providers["vllm"].APIKeyEnv)
	assert.Equal(t, types.Duration(90*time.Second), cfg.Providers["vllm"].Timeout)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().WithConfigPath("/nonexistent/weft.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine, cfg.Engine)
}

func TestEnvOverrides(t *testing.T) {
	// Not parallel: mutates the process environment.
	t.Setenv("WEFTTEST_ENGINE_CONCURRENCY", "8")
	t.Setenv("WEFTTEST_ENGINE_TIMEOUT", "90s")
	t.Setenv("WEFTTEST_RETRY_MAX_RETRIES", "5")
	t.Setenv("WEFTTEST_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithEnvPrefix("WEFTTEST").Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, types.Duration(90*time.Second), cfg.Engine.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadValidator(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.Engine.Concurrency < 2 {
			return assert.AnError
		}
		return nil
	}).Load()
	require.Error(t, err)
}

func TestProviderConns(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Providers = map[string]ProviderConfig{
		"vllm":   {BaseURL: "http://x:8000", APIKeyEnv: "VLLM_KEY"},
		"ollama": {BaseURL: "http://y:11434"},
	}

	conns := cfg.ProviderConns(func(name string) string {
		if name == "VLLM_KEY" {
			return "sk-test"
		}
		return ""
	})

	assert.Equal(t, "sk-test", conns["vllm"].APIKey)
	assert.Equal(t, "http://x:8000", conns["vllm"].BaseURL)
	assert.Empty(t, conns["ollama"].APIKey)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Debug("configured", zap.String("sink", "console"))

	_, err = NewLogger(LogConfig{Level: "verbose"})
	require.Error(t, err)

	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}
