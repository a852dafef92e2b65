// Package config loads Sentinel process configuration. Every knob is
// overridable through SENTINEL_-prefixed environment variables without code
// change, e.g. SENTINEL_REDIS_ADDR or SENTINEL_WORKER_MAX_RETRIES.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration, grouped by concern.
type Config struct {
	Redis  RedisConfig  `mapstructure:"redis"`
	API    APIConfig    `mapstructure:"api"`
	Worker WorkerConfig `mapstructure:"worker"`
}

// RedisConfig locates the backing store shared by all processes.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// APIConfig configures the submission/statistics HTTP server.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
	// Key enables API-key authentication when non-empty.
	Key string `mapstructure:"key"`
}

// WorkerConfig configures the worker process and its dispatcher loops.
type WorkerConfig struct {
	// Count is the number of dispatcher loops per worker process.
	Count int `mapstructure:"count"`
	// MaxRetries is the per-task retry budget.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBase is the exponential backoff base: the Nth retry waits
	// base^N seconds.
	BackoffBase float64 `mapstructure:"backoff_base"`
	// BackoffMode is "block" or "delay".
	BackoffMode string `mapstructure:"backoff_mode"`
	// PollInterval is the idle sleep between claims on an empty queue.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PromoteInterval is how often the delayed-queue promoter scans.
	PromoteInterval time.Duration `mapstructure:"promote_interval"`
	// RateLimit caps executions per second across all workers; 0 disables.
	RateLimit int `mapstructure:"rate_limit"`
	// MetricsAddr is the Prometheus listen address.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from the environment over built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("api.addr", ":8081")
	v.SetDefault("api.key", "")
	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.backoff_base", 2.0)
	v.SetDefault("worker.backoff_mode", "block")
	v.SetDefault("worker.poll_interval", 500*time.Millisecond)
	v.SetDefault("worker.promote_interval", 500*time.Millisecond)
	v.SetDefault("worker.rate_limit", 0)
	v.SetDefault("worker.metrics_addr", ":8080")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr must not be empty")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("config: worker.count must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Worker.BackoffBase < 1 {
		return fmt.Errorf("config: worker.backoff_base must be at least 1, got %g", c.Worker.BackoffBase)
	}
	switch c.Worker.BackoffMode {
	case "block", "delay":
	default:
		return fmt.Errorf("config: worker.backoff_mode must be \"block\" or \"delay\", got %q", c.Worker.BackoffMode)
	}
	return nil
}
