package common

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	Queue    QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `env:"DB_DRIVER" envDefault:"postgres"` // postgres | sqlite
	DSN              string        `env:"DB_URL"`
	MaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DialTimeout      time.Duration `env:"DB_DIAL_TIMEOUT" envDefault:"3s"`
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"0"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// LLMConfig holds text-generation provider configuration
type LLMConfig struct {
	BaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model       string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	APIKey      string        `env:"LLM_API_KEY"`
	Temperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"2000"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`
}

// QueueConfig holds grading queue configuration
type QueueConfig struct {
	Workers    int           `env:"GRADING_WORKERS" envDefault:"4"`
	Size       int           `env:"GRADING_QUEUE_SIZE" envDefault:"64"`
	JobTimeout time.Duration `env:"GRADING_JOB_TIMEOUT" envDefault:"30m"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, WrapError(err, "parse environment")
	}
	return cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
