package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/media"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), "hello"))
	assert.Equal(t, map[string]string{"content": "hello"}, got)
}

func TestDiscordNotifier_Errors(t *testing.T) {
	assert.ErrorIs(t, (&DiscordNotifier{}).Notify(context.Background(), "x"), ErrNoWebhook)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := (&DiscordNotifier{WebhookURL: srv.URL}).Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOutcomeMessage(t *testing.T) {
	file := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(file, make([]byte, 2048), 0o644))

	msg := OutcomeMessage(media.KindDownload, "https://example.com/watch?v=1", media.Outcome{
		Success:       true,
		State:         media.StateSucceeded,
		Message:       "Downloaded successfully: " + file + " (MP3 (Audio))",
		ArtifactPath:  file,
		ArtifactCount: 1,
	}, 90*time.Second+400*time.Millisecond)

	assert.Contains(t, msg, "download of https://example.com/watch?v=1 succeeded after 1m30s")
	assert.Contains(t, msg, "[2.0 kB]")

	msg = OutcomeMessage(media.KindConvert, "/in.webm", media.Outcome{
		State:   media.StateTimedOut,
		Message: "Conversion timed out after 30m0s.",
	}, 30*time.Minute)

	assert.Contains(t, msg, "convert of /in.webm timed_out after 30m0s")
	assert.NotContains(t, msg, "[")
}
