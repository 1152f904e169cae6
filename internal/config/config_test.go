package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "yt-dlp", cfg.YtDlpPath)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 10*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ConvertTimeout)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "0.0.0.0:5000", cfg.Web.BindAddress)
	assert.Equal(t, "media_downloader", cfg.Telemetry.ServiceName)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("YTDLP_PATH", "/usr/local/bin/yt-dlp")
	t.Setenv("CONVERT_TIMEOUT", "0s")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://media.example.com")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:8080")
	t.Setenv("OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/yt-dlp", cfg.YtDlpPath)
	assert.Zero(t, cfg.ConvertTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://media.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "127.0.0.1:8080", cfg.Web.BindAddress)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte("DOWNLOAD_DIR=/srv/media\nSUBSCRIBER_BUFFER=8\n"), 0o600))

	// registers the restore, then leaves the variable unset for the file to fill
	t.Setenv("DOWNLOAD_DIR", "")
	require.NoError(t, os.Unsetenv("DOWNLOAD_DIR"))
	t.Setenv("SUBSCRIBER_BUFFER", "16")

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", cfg.DownloadDir)
	assert.Equal(t, 16, cfg.SubscriberBuffer, "environment wins over the file")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "SUBSCRIBER_BUFFER", value: "0"},
		{key: "DOWNLOAD_TIMEOUT", value: "0s"},
		{key: "CLEANUP_INTERVAL", value: "0s"},
		{key: "CLEANUP_INTERVAL", value: "-1m"},
		{key: "KEEP_HISTORY_FOR", value: "-1h"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadConfig_ZeroRetentionIsAllowed(t *testing.T) {
	t.Setenv("KEEP_HISTORY_FOR", "0s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Zero(t, cfg.KeepHistoryFor)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), in)
	}
}
