// Package config provides configuration management for the picklist service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PICKLIST"

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for every tunable.
// A missing config file is not an error: defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "frc-picklist")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_wait_min_ms", 500)
	v.SetDefault("llm.retry_wait_max_ms", 10000)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_timeout_seconds", 30)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("picklist.prompt_token_budget", 12000)
	v.SetDefault("picklist.output_token_budget", 4000)
	v.SetDefault("picklist.tokens_per_entry", 28)
	v.SetDefault("picklist.max_metrics", 12)
	v.SetDefault("picklist.max_reason_words", 12)
	v.SetDefault("picklist.digest_length", 80)
	v.SetDefault("picklist.reference_teams", 4)
	v.SetDefault("picklist.min_chunk_size", 8)
	v.SetDefault("picklist.max_concurrent_chunks", 3)
	v.SetDefault("picklist.batch_on_overflow", true)
	v.SetDefault("picklist.fallback_margin", 5.0)
	v.SetDefault("picklist.fallback_floor", 0.0)
	v.SetDefault("picklist.loop_duplicate_threshold", 0.4)
	v.SetDefault("picklist.call_timeout_seconds", 180)
	v.SetDefault("picklist.max_attempts", 3)
	v.SetDefault("picklist.backoff_base_ms", 1000)
	v.SetDefault("picklist.backoff_max_ms", 15000)
	v.SetDefault("picklist.game_context", "")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 0)
	v.SetDefault("cache.error_ttl_seconds", 60)
	v.SetDefault("cache.lock_ttl_seconds", 900)
	v.SetDefault("cache.flush_schedule", "")
	v.SetDefault("cache.stats_schedule", "@every 5m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "frc-picklist")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("secrets.enabled", false)
	v.SetDefault("secrets.region", "us-east-1")
	v.SetDefault("secrets.secret_name", "")
}
