package rest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/broadcast"
	"github.com/italolelis/media_downloader/internal/media"
)

func dialHub(t *testing.T, b *broadcast.Broadcaster, query string) (*websocket.Conn, context.Context) {
	t.Helper()

	srv := httptest.NewServer(NewHub(b, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	before := b.Len()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	require.Eventually(t, func() bool { return b.Len() == before+1 }, 2*time.Second, 5*time.Millisecond)

	return conn, ctx
}

func readProgress(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()

	var frame Invocation
	require.NoError(t, wsjson.Read(ctx, conn, &frame))

	assert.Equal(t, 1, frame.Type)
	assert.Equal(t, ProgressTarget, frame.Target)
	require.Len(t, frame.Arguments, 1)

	var payload string
	require.NoError(t, json.Unmarshal(frame.Arguments[0], &payload))

	return payload
}

func TestHub_PushesProgress(t *testing.T) {
	b := broadcast.New(8, nil)
	conn, ctx := dialHub(t, b, "")

	b.Publish(ctx, media.ProgressEvent{OperationID: "a", Kind: media.EventPercent, Payload: "45.2%"})
	b.Publish(ctx, media.ProgressEvent{OperationID: "a", Kind: media.EventDurationKnown, Payload: "1m40s"})
	b.Publish(ctx, media.ProgressEvent{OperationID: "a", Kind: media.EventStatusLine, Payload: "[download] Destination: a.mp4"})

	assert.Equal(t, "45.2%", readProgress(t, ctx, conn))
	assert.Equal(t, "[download] Destination: a.mp4", readProgress(t, ctx, conn))
}

func TestHub_RebroadcastsClientNotifications(t *testing.T) {
	b := broadcast.New(8, nil)
	first, ctx := dialHub(t, b, "")
	second, _ := dialHub(t, b, "")

	require.NoError(t, wsjson.Write(ctx, first, Invocation{
		Type:      1,
		Target:    NotifyTarget,
		Arguments: []json.RawMessage{json.RawMessage(`"42%"`)},
	}))

	assert.Equal(t, "42%", readProgress(t, ctx, first))
	assert.Equal(t, "42%", readProgress(t, ctx, second))
}

func TestHub_FiltersByOperation(t *testing.T) {
	b := broadcast.New(8, nil)
	conn, ctx := dialHub(t, b, "?operation=a")

	b.Publish(ctx, media.ProgressEvent{OperationID: "b", Kind: media.EventPercent, Payload: "10%"})
	b.Publish(ctx, media.ProgressEvent{OperationID: "a", Kind: media.EventPercent, Payload: "20%"})

	assert.Equal(t, "20%", readProgress(t, ctx, conn))
}

func TestHub_ClosesWhenBroadcasterCloses(t *testing.T) {
	b := broadcast.New(8, nil)
	conn, ctx := dialHub(t, b, "")

	b.Close()

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestHub_UnsubscribesOnDisconnect(t *testing.T) {
	b := broadcast.New(8, nil)
	conn, _ := dialHub(t, b, "")

	_ = conn.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:3000", "app.example.com"},
		originPatterns([]string{"http://localhost:3000", "https://app.example.com"}))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"http://localhost:3000", "*"}))
	assert.Equal(t, []string{"example.com"}, originPatterns([]string{"example.com"}))
}
