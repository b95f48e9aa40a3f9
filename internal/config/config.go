package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Unipile      UnipileConfig      `yaml:"unipile"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Verification VerificationConfig `yaml:"verification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds Redis settings for the scheduler lock
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// UnipileConfig holds messaging provider API configuration
type UnipileConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c UnipileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AnthropicConfig holds the language-model provider configuration
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Enabled   bool   `yaml:"enabled"`
}

// SchedulerConfig holds the outreach scheduler loop configuration
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	ClassicBatchSize    int  `yaml:"classic_batch_size"`
	PipelineBatchSize   int  `yaml:"pipeline_batch_size"`
}

// TickInterval returns the tick period as a duration
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// VerificationConfig holds email verification provider settings
type VerificationConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Unipile.BaseURL == "" {
		cfg.Unipile.BaseURL = "https://api.unipile.com"
	}
	if cfg.Unipile.TimeoutSeconds == 0 {
		cfg.Unipile.TimeoutSeconds = 30
	}
	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Anthropic.MaxTokens == 0 {
		cfg.Anthropic.MaxTokens = 1024
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 30
	}
	if cfg.Scheduler.ClassicBatchSize == 0 {
		cfg.Scheduler.ClassicBatchSize = 5
	}
	if cfg.Scheduler.PipelineBatchSize == 0 {
		cfg.Scheduler.PipelineBatchSize = 3
	}
	if cfg.Verification.RatePerMinute == 0 {
		cfg.Verification.RatePerMinute = 100
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if baseURL := os.Getenv("UNIPILE_BASE_URL"); baseURL != "" {
		cfg.Unipile.BaseURL = baseURL
	}
	if apiKey := os.Getenv("UNIPILE_API_KEY"); apiKey != "" {
		cfg.Unipile.APIKey = apiKey
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Anthropic.APIKey = apiKey
		cfg.Anthropic.Enabled = true
	}
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		cfg.Anthropic.Model = model
	}
	if apiKey := os.Getenv("VERIFIER_API_KEY"); apiKey != "" {
		cfg.Verification.APIKey = apiKey
	}
	if baseURL := os.Getenv("VERIFIER_BASE_URL"); baseURL != "" {
		cfg.Verification.BaseURL = baseURL
	}

	return cfg, nil
}
