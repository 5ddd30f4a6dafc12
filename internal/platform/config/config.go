package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" default:"development"`
	Port       string `env:"PORT" default:"8080"`
	DataDir    string `env:"DATA_DIR" default:"data"`
	ReportsDir string `env:"REPORTS_DIR" default:"reports"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"text"`

	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `env:"REDDIT_USER_AGENT" default:"policypulse-research-app/0.1"`

	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT" default:"30s"`
	AcquireMaxAttempts int           `env:"ACQUIRE_MAX_ATTEMPTS" default:"3"`
	AcquireCachePath   string        `env:"ACQUIRE_CACHE"`

	ReportCacheTTL time.Duration `env:"REPORT_CACHE_TTL" default:"30s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// HasRedditCredentials reports whether the Reddit source can authenticate.
// Without credentials the client falls back to the public JSON listing.
func (c *Config) HasRedditCredentials() bool {
	return c.RedditClientID != "" && c.RedditClientSecret != ""
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if (cfg.RedditClientID == "") != (cfg.RedditClientSecret == "") {
		return fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET must be set together")
	}

	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout)
	}

	if cfg.AcquireMaxAttempts < 1 {
		return fmt.Errorf("ACQUIRE_MAX_ATTEMPTS must be at least 1, got %d", cfg.AcquireMaxAttempts)
	}

	return nil
}
