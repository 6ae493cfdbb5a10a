package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" env-default:"8080"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"INFO"`
	Environment string `env:"ENVIRONMENT" env-default:"production"`
	JWTSecret   string `env:"JWT_SECRET"`

	Database DatabaseConfig
	LLM      LLMConfig
	Cache    CacheConfig

	// LegacySingleTenant lets the document selector fall back to every chunk
	// in the store when an organization has none of its own.
	LegacySingleTenant bool `env:"LEGACY_SINGLE_TENANT" env-default:"false"`
}

type DatabaseConfig struct {
	Driver string `env:"DATABASE_DRIVER" env-default:"sqlite"`
	URL    string `env:"DATABASE_URL" env-default:"botsystem.db"`
}

type LLMConfig struct {
	Provider          string        `env:"LLM_PROVIDER" env-default:"gemini"`
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIModel       string        `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	AnthropicAPIKey   string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel    string        `env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
	EmbeddingModel    string        `env:"EMBEDDING_MODEL"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" env-default:"60s"`
}

type CacheConfig struct {
	RedisAddr string        `env:"REDIS_ADDR"`
	TTL       time.Duration `env:"TEMPLATE_CACHE_TTL" env-default:"1h"`
}

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads configuration from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the secrets required by the selected backends are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}

	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for provider %q", c.LLM.Provider)
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider %q", c.LLM.Provider)
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required for provider %q", c.LLM.Provider)
		}
		// Anthropic has no embedding endpoint; chunk ingestion needs one of the others.
		if c.LLM.OpenAIAPIKey == "" && c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("provider %q needs OPENAI_API_KEY or GEMINI_API_KEY for embeddings", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}

	if c.LLM.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local development setup.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}
