package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	ArtifactName   string `envconfig:"ARTIFACT_NAME" required:"true"`
	CurrentVersion string `envconfig:"CURRENT_VERSION" required:"true"`

	ManifestURL  string `envconfig:"MANIFEST_URL"`
	ManifestPath string `envconfig:"MANIFEST_PATH"`
	UpdateToken  string `envconfig:"UPDATE_TOKEN"`

	DownloadDir       string        `envconfig:"DOWNLOAD_DIR" required:"true"`
	TrustedRootsPath  string        `envconfig:"TRUSTED_ROOTS_PATH" required:"true"`
	CheckInterval     time.Duration `envconfig:"CHECK_INTERVAL" default:"10m"`
	KeepAcceptedFor   time.Duration `envconfig:"KEEP_ACCEPTED_FOR" default:"24h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string        `envconfig:"DB_PATH" default:"updates.db"`

	Retry struct {
		MaxAttempts  int           `split_words:"true" default:"5"`
		Delay        time.Duration `split_words:"true" default:"5s"`
		PollInterval time.Duration `split_words:"true" default:"900ms"`
	}

	Probe struct {
		Address  string        `split_words:"true" default:"1.1.1.1:443"`
		Interval time.Duration `split_words:"true" default:"5s"`
		Timeout  time.Duration `split_words:"true" default:"2s"`
	}

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"update_fetcher"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.ManifestURL == "" && cfg.ManifestPath == "" {
		return nil, fmt.Errorf("either MANIFEST_URL or MANIFEST_PATH must be set")
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
