package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ReviewLens server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Reviews  ReviewsConfig
	Extract  ExtractConfig
	Quota    QuotaConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ReviewsConfig points at the remote review-source service.
type ReviewsConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PerTierLimit int
	CacheTTL     time.Duration
}

// ExtractConfig configures the LLM extraction client. Timeout bounds a
// single provider call; JobTimeout bounds one pipeline run end to end,
// so it must leave room for collection plus every retry attempt.
type ExtractConfig struct {
	Provider    string
	Timeout     time.Duration
	JobTimeout  time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	OpenAI      OpenAIConfig
	Anthropic   AnthropicConfig
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type QuotaConfig struct {
	FreeTierJobLimit int
	RequestsPerMin   int
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REVIEWLENS_PORT", 8080),
			Env:  envString("REVIEWLENS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Reviews: ReviewsConfig{
			BaseURL:      os.Getenv("REVIEWS_BASE_URL"),
			Timeout:      envDuration("REVIEWS_TIMEOUT", 30*time.Second),
			PerTierLimit: envInt("REVIEWS_PER_TIER_LIMIT", 50),
			CacheTTL:     envDuration("REVIEWS_CACHE_TTL", 24*time.Hour),
		},
		Extract: ExtractConfig{
			Provider:    os.Getenv("EXTRACT_PROVIDER"),
			Timeout:     envDurationSecs("EXTRACT_TIMEOUT_SECS", 120*time.Second),
			JobTimeout:  envDuration("EXTRACT_JOB_TIMEOUT", 15*time.Minute),
			MaxAttempts: envInt("EXTRACT_MAX_ATTEMPTS", 4),
			BaseBackoff: envDuration("EXTRACT_BASE_BACKOFF", 5*time.Second),
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Quota: QuotaConfig{
			FreeTierJobLimit: envInt("FREE_TIER_JOB_LIMIT", 5),
			RequestsPerMin:   envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Reviews.BaseURL == "" {
		return fmt.Errorf("REVIEWS_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Reviews.BaseURL, "http://") && !strings.HasPrefix(c.Reviews.BaseURL, "https://") {
		return fmt.Errorf("REVIEWS_BASE_URL must start with http:// or https://, got %q", c.Reviews.BaseURL)
	}

	if c.Extract.Provider == "" {
		return fmt.Errorf("EXTRACT_PROVIDER is required")
	}
	if !validProviders[c.Extract.Provider] {
		return fmt.Errorf("EXTRACT_PROVIDER must be one of openai, anthropic, mock; got %q", c.Extract.Provider)
	}

	if c.Extract.Provider == "openai" && c.Extract.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EXTRACT_PROVIDER is openai")
	}
	if c.Extract.Provider == "anthropic" && c.Extract.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when EXTRACT_PROVIDER is anthropic")
	}

	if c.Extract.MaxAttempts < 1 {
		return fmt.Errorf("EXTRACT_MAX_ATTEMPTS must be at least 1, got %d", c.Extract.MaxAttempts)
	}

	if c.Extract.JobTimeout > 0 && c.Extract.JobTimeout < c.Extract.Timeout {
		return fmt.Errorf("EXTRACT_JOB_TIMEOUT must be at least EXTRACT_TIMEOUT_SECS (%s), got %s",
			c.Extract.Timeout, c.Extract.JobTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
