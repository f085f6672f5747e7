// Package config loads the engine host configuration: provider endpoints and
// credential indirection, run limits, retry parameters, and logging.
//
// Precedence: built-in defaults, then the YAML file, then environment
// variables.
package config

import (
	"time"

	"github.com/weftflow/weft/types"
	"github.com/weftflow/weft/workflow"
)

// Config is the full host configuration.
type Config struct {
	// Engine holds run-level limits.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`
	// Providers maps provider ids to their connection settings.
	Providers map[string]ProviderConfig `yaml:"providers" env:"-"`
	// Retry holds the default retry strategy for workflows that declare
	// none.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
	// Log holds the zap logger settings.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// EngineConfig holds run-level limits.
type EngineConfig struct {
	// Timeout bounds a run when the workflow declares no timeout itself.
	Timeout types.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Concurrency is the default in-flight adapter call ceiling.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// RateLimitRPS throttles adapter dispatches per second, 0 disables.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the dispatch burst size when throttling.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// MetricsNamespace prefixes the Prometheus metric names.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// ProviderConfig is one backend's connection settings. Credentials are
// supplied by name indirection: APIKeyEnv names the environment variable
// holding the key, so config files never carry secrets.
type ProviderConfig struct {
	BaseURL   string         `yaml:"base_url"`
	APIKeyEnv string         `yaml:"api_key_env"`
	Timeout   types.Duration `yaml:"timeout"`
}

// RetryConfig mirrors the workflow retry strategy shape.
type RetryConfig struct {
	MaxRetries   int            `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay types.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     types.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64        `yaml:"multiplier" env:"MULTIPLIER"`
}

// LogConfig holds the zap logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// EnableCaller annotates entries with file and line.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Timeout:          types.Duration(10 * time.Minute),
			Concurrency:      1,
			RateLimitBurst:   1,
			MetricsNamespace: "weft",
		},
		Providers: map[string]ProviderConfig{},
		Retry: RetryConfig{
			MaxRetries:   2,
			InitialDelay: types.Duration(500 * time.Millisecond),
			MaxDelay:     types.Duration(10 * time.Second),
			Multiplier:   2.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProviderConns resolves the provider section into run connection settings,
// reading each credential from its named environment variable through
// lookupEnv (os.Getenv in production, injectable for tests).
func (c *Config) ProviderConns(lookupEnv func(string) string) map[string]workflow.ProviderConn {
	conns := make(map[string]workflow.ProviderConn, len(c.Providers))
	for id, pc := range c.Providers {
		conn := workflow.ProviderConn{BaseURL: pc.BaseURL}
		if pc.APIKeyEnv != "" && lookupEnv != nil {
			conn.APIKey = lookupEnv(pc.APIKeyEnv)
		}
		conns[id] = conn
	}
	return conns
}
