package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for dunelens.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr        string        `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port            string        `yaml:"port" env:"PORT" env-default:"3001"`
	Env             string        `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	Version         string        `yaml:"-"` // Set at load time, not from config

	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Completion  CompletionConfig  `yaml:"completion"`
	Dune        DuneConfig        `yaml:"dune"`
	Relevance   RelevanceConfig   `yaml:"relevance"`
	Persistence PersistenceConfig `yaml:"persistence"`
	CORS        CORSConfig        `yaml:"cors"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"dunelens"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"dunelens"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// URL builds the postgres connection string.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RedisConfig holds the optional Redis cache configuration.
// An empty host disables caching.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// CompletionConfig selects and tunes the text-completion provider.
type CompletionConfig struct {
	Provider    string        `yaml:"provider" env:"COMPLETION_PROVIDER" env-default:"anthropic"`
	Model       string        `yaml:"model" env:"COMPLETION_MODEL" env-default:"claude-3-5-sonnet-20241022"`
	BaseURL     string        `yaml:"base_url" env:"COMPLETION_BASE_URL" env-default:""`
	MaxTokens   int           `yaml:"max_tokens" env:"COMPLETION_MAX_TOKENS" env-default:"4000"`
	Temperature float32       `yaml:"temperature" env:"COMPLETION_TEMPERATURE" env-default:"0.3"`
	Timeout     time.Duration `yaml:"timeout" env:"COMPLETION_TIMEOUT" env-default:"30s"`

	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
}

// APIKey returns the key for the configured provider.
func (c *CompletionConfig) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// IsConfigured returns true if the configured provider has a key.
func (c *CompletionConfig) IsConfigured() bool {
	return c.APIKey() != ""
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DuneConfig holds the analytics-query service settings.
type DuneConfig struct {
	BaseURL          string        `yaml:"base_url" env:"DUNE_BASE_URL" env-default:"https://api.dune.com"`
	Timeout          time.Duration `yaml:"timeout" env:"DUNE_TIMEOUT" env-default:"10s"`
	PollAttempts     int           `yaml:"poll_attempts" env:"DUNE_POLL_ATTEMPTS" env-default:"15"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"DUNE_POLL_INTERVAL" env-default:"2s"`
	MetadataCacheTTL time.Duration `yaml:"metadata_cache_ttl" env:"DUNE_METADATA_CACHE_TTL" env-default:"1h"`
	APIKey           string        `yaml:"-" env:"DUNE_API_KEY"` // Secret - not in YAML
}

// IsConfigured returns true if a Dune API key is present.
func (d *DuneConfig) IsConfigured() bool {
	return d.APIKey != ""
}

// RelevanceConfig tunes related-query lookup and prompt assembly.
type RelevanceConfig struct {
	// VocabularyFile optionally replaces the built-in stopword and alias tables.
	VocabularyFile    string `yaml:"vocabulary_file" env:"RELEVANCE_VOCABULARY_FILE" env-default:""`
	CandidatePool     int    `yaml:"candidate_pool" env:"RELEVANCE_CANDIDATE_POOL" env-default:"50"`
	DefaultLimit      int    `yaml:"default_limit" env:"RELEVANCE_DEFAULT_LIMIT" env-default:"10"`
	ExemplarLimit     int    `yaml:"exemplar_limit" env:"RELEVANCE_EXEMPLAR_LIMIT" env-default:"3"`
	PastFixLimit      int    `yaml:"past_fix_limit" env:"RELEVANCE_PAST_FIX_LIMIT" env-default:"3"`
	PromptTokenBudget int    `yaml:"prompt_token_budget" env:"RELEVANCE_PROMPT_TOKEN_BUDGET" env-default:"6000"`
}

// PersistenceConfig holds the merge-policy thresholds.
type PersistenceConfig struct {
	QualityImprovementRatio float64       `yaml:"quality_improvement_ratio" env:"PERSIST_QUALITY_IMPROVEMENT_RATIO" env-default:"0.2"`
	StaleAfter              time.Duration `yaml:"stale_after" env:"PERSIST_STALE_AFTER" env-default:"720h"`
}

// CORSConfig holds allowed browser origins. "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid completion provider %q: must be %q or %q",
			c.Completion.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("completion timeout must be positive")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion max_tokens must be positive")
	}
	if c.Dune.Timeout <= 0 {
		return fmt.Errorf("dune timeout must be positive")
	}
	if c.Dune.PollAttempts <= 0 || c.Dune.PollInterval <= 0 {
		return fmt.Errorf("dune poll_attempts and poll_interval must be positive")
	}
	if r := c.Persistence.QualityImprovementRatio; r <= 0 || r > 1 {
		return fmt.Errorf("persistence quality_improvement_ratio must be in (0,1], got %v", r)
	}
	if c.Persistence.StaleAfter <= 0 {
		return fmt.Errorf("persistence stale_after must be positive")
	}
	if c.Relevance.DefaultLimit <= 0 || c.Relevance.CandidatePool <= 0 {
		return fmt.Errorf("relevance default_limit and candidate_pool must be positive")
	}
	return nil
}

// IsLocal reports whether the server runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}
