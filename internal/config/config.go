// Package config provides configuration management for the picklist service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Picklist PicklistConfig `mapstructure:"picklist" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// LLMConfig represents the chat completion provider configuration
type LLMConfig struct {
	Provider              string  `mapstructure:"provider" validate:"required,oneof=anthropic openai"`
	APIKey                string  `mapstructure:"api_key"`
	Model                 string  `mapstructure:"model" validate:"required"`
	BaseURL               string  `mapstructure:"base_url" validate:"omitempty,url"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries            int     `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryWaitMinMs        int     `mapstructure:"retry_wait_min_ms" validate:"required,gt=0"`
	RetryWaitMaxMs        int     `mapstructure:"retry_wait_max_ms" validate:"required,gt=0"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second" validate:"required,gt=0"`
	BreakerFailures       int     `mapstructure:"breaker_failures" validate:"required,gt=0"`
	BreakerTimeoutSeconds int     `mapstructure:"breaker_timeout_seconds" validate:"required,gt=0"`
	Temperature           float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// PicklistConfig represents pipeline tunables
type PicklistConfig struct {
	PromptTokenBudget      int     `mapstructure:"prompt_token_budget" validate:"required,gt=0"`
	OutputTokenBudget      int     `mapstructure:"output_token_budget" validate:"required,gt=0"`
	TokensPerEntry         int     `mapstructure:"tokens_per_entry" validate:"required,gt=0"`
	MaxMetrics             int     `mapstructure:"max_metrics" validate:"required,gt=0"`
	MaxReasonWords         int     `mapstructure:"max_reason_words" validate:"required,gt=0,lte=50"`
	DigestLength           int     `mapstructure:"digest_length" validate:"required,gt=0"`
	ReferenceTeams         int     `mapstructure:"reference_teams" validate:"gte=0"`
	MinChunkSize           int     `mapstructure:"min_chunk_size" validate:"required,gt=0"`
	MaxConcurrentChunks    int     `mapstructure:"max_concurrent_chunks" validate:"required,gt=0"`
	BatchOnOverflow        bool    `mapstructure:"batch_on_overflow"`
	FallbackMargin         float64 `mapstructure:"fallback_margin" validate:"gte=0.01"`
	FallbackFloor          float64 `mapstructure:"fallback_floor"`
	LoopDuplicateThreshold float64 `mapstructure:"loop_duplicate_threshold" validate:"required,gt=0,lte=1"`
	CallTimeoutSeconds     int     `mapstructure:"call_timeout_seconds" validate:"required,gt=0"`
	MaxAttempts            int     `mapstructure:"max_attempts" validate:"required,gt=0,lte=10"`
	BackoffBaseMs          int     `mapstructure:"backoff_base_ms" validate:"required,gt=0"`
	BackoffMaxMs           int     `mapstructure:"backoff_max_ms" validate:"required,gt=0"`
	GameContext            string  `mapstructure:"game_context"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Backend         string `mapstructure:"backend" validate:"required,oneof=memory redis"`
	TTLSeconds      int    `mapstructure:"ttl_seconds" validate:"gte=0"`
	ErrorTTLSeconds int    `mapstructure:"error_ttl_seconds" validate:"required,gt=0"`
	LockTTLSeconds  int    `mapstructure:"lock_ttl_seconds" validate:"required,gt=0"`
	FlushSchedule   string `mapstructure:"flush_schedule" validate:"omitempty,cronspec"`
	StatsSchedule   string `mapstructure:"stats_schedule" validate:"omitempty,cronspec"`
}

// RedisConfig represents redis connection configuration
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig represents the optional team metrics database
type DatabaseConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"gte=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"gte=0"`
}

// MetricsConfig represents metrics and ops server configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// SecretsConfig represents the AWS Secrets Manager overlay
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region"`
	SecretName string `mapstructure:"secret_name"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// CompletionLLM returns the LLM settings used by the generator's client. When the
// generator retries calls itself, transport-level retries are disabled so one
// transient failure costs at most picklist.max_attempts requests.
func (c *Config) CompletionLLM() LLMConfig {
	llm := c.LLM
	if c.Picklist.MaxAttempts > 1 {
		llm.MaxRetries = 0
	}
	return llm
}

// CallTimeout returns the per-call LLM deadline used by the generator.
func (p PicklistConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

// ResultTTL returns how long successful results stay cached. Zero means until invalidated.
func (c CacheConfig) ResultTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ErrorTTL returns how long error and overflow results stay cached.
func (c CacheConfig) ErrorTTL() time.Duration {
	return time.Duration(c.ErrorTTLSeconds) * time.Second
}

// LockTTL returns how long a distributed generation claim lives.
func (c CacheConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}
