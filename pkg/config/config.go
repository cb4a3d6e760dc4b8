package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for aurascan-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password, provider API keys) must only come from environment
// variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Provider credentials and models
	Providers ProvidersConfig `yaml:"providers"`

	// Scan pipeline tuning
	Scan ScanConfig `yaml:"scan"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"aurascan"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"aurascan_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ProviderConfig holds one answer engine's credentials and model selection.
// API keys are secrets and only come from the environment.
type ProviderConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Configured returns true if the provider has credentials.
func (p *ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// ProvidersConfig holds per-provider settings, keyed by provider name.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic"`
	Gemini     ProviderConfig `yaml:"gemini"`
	Perplexity ProviderConfig `yaml:"perplexity"`

	// Secrets, env-only. Copied into the per-provider structs at load time.
	OpenAIKey     string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GeminiKey     string `yaml:"-" env:"GEMINI_API_KEY"`
	PerplexityKey string `yaml:"-" env:"PERPLEXITY_API_KEY"`
}

// ScanConfig holds scan pipeline tuning knobs.
type ScanConfig struct {
	// MaxConcurrent caps concurrent provider calls per job.
	MaxConcurrent int `yaml:"max_concurrent" env:"SCAN_MAX_CONCURRENT" env-default:"6"`

	// ProviderTimeoutSeconds bounds a single provider call.
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds" env:"SCAN_PROVIDER_TIMEOUT_SECONDS" env-default:"60"`

	// HeartbeatStaleMinutes is how old a heartbeat may be before an
	// in_progress job is reported as stuck and becomes resumable.
	HeartbeatStaleMinutes int `yaml:"heartbeat_stale_minutes" env:"SCAN_HEARTBEAT_STALE_MINUTES" env-default:"5"`

	// WindowHourUTC is the reference hour of the daily execution window.
	// Triggers before this hour belong to the previous day's window.
	WindowHourUTC int `yaml:"window_hour_utc" env:"SCAN_WINDOW_HOUR_UTC" env-default:"3"`

	// AutoTrigger enables the background loop that starts daily scans
	// without a manual trigger.
	AutoTrigger bool `yaml:"auto_trigger" env:"SCAN_AUTO_TRIGGER" env-default:"false"`

	// HealthSampleSize is how many recent runs the health monitor samples.
	HealthSampleSize int `yaml:"health_sample_size" env:"SCAN_HEALTH_SAMPLE_SIZE" env-default:"100"`
}

// ProviderTimeout returns the per-call timeout as a duration.
func (c *ScanConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// HeartbeatStaleAfter returns the staleness threshold as a duration.
func (c *ScanConfig) HeartbeatStaleAfter() time.Duration {
	return time.Duration(c.HeartbeatStaleMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.applySecrets()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applySecrets copies env-only API keys into the per-provider structs.
func (c *Config) applySecrets() {
	c.Providers.OpenAI.APIKey = c.Providers.OpenAIKey
	c.Providers.Anthropic.APIKey = c.Providers.AnthropicKey
	c.Providers.Gemini.APIKey = c.Providers.GeminiKey
	c.Providers.Perplexity.APIKey = c.Providers.PerplexityKey
}

func (c *Config) validate() error {
	if c.Scan.MaxConcurrent < 1 {
		return fmt.Errorf("scan.max_concurrent must be at least 1, got %d", c.Scan.MaxConcurrent)
	}
	if c.Scan.WindowHourUTC < 0 || c.Scan.WindowHourUTC > 23 {
		return fmt.Errorf("scan.window_hour_utc must be in [0,23], got %d", c.Scan.WindowHourUTC)
	}
	if c.Scan.HeartbeatStaleMinutes < 1 {
		return fmt.Errorf("scan.heartbeat_stale_minutes must be at least 1, got %d", c.Scan.HeartbeatStaleMinutes)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
