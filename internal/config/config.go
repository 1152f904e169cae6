package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	YtDlpPath        string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath       string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	DownloadDir      string        `envconfig:"DOWNLOAD_DIR"`
	DownloadTimeout  time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	ConvertTimeout   time.Duration `envconfig:"CONVERT_TIMEOUT" default:"30m"`
	ProcessWaitDelay time.Duration `envconfig:"PROCESS_WAIT_DELAY" default:"5s"`

	SubscriberBuffer int           `envconfig:"SUBSCRIBER_BUFFER" default:"64"`
	KeepHistoryFor   time.Duration `envconfig:"KEEP_HISTORY_FOR" default:"24h"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	LogLevel          string   `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string   `envconfig:"DISCORD_WEBHOOK_URL"`
	AllowedOrigins    []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"media_downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:5000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads a .env file when one exists, then environment variables,
// and populates the Config struct. Variables already set in the environment
// win over the file.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.SubscriberBuffer <= 0 {
		return nil, fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", cfg.SubscriberBuffer)
	}

	if cfg.DownloadTimeout <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_TIMEOUT must be positive, got %s", cfg.DownloadTimeout)
	}

	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}

	if cfg.KeepHistoryFor < 0 {
		return nil, fmt.Errorf("KEEP_HISTORY_FOR must not be negative, got %s", cfg.KeepHistoryFor)
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
