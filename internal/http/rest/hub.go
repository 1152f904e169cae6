package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/italolelis/media_downloader/internal/broadcast"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
)

const (
	// ProgressTarget is the client method invoked for every progress update.
	ProgressTarget = "ReceiveProgress"
	// NotifyTarget is the server method clients call to rebroadcast progress.
	NotifyTarget = "NotifyConversionProgress"

	invocationType = 1
	writeTimeout   = 10 * time.Second
)

// Invocation is the frame exchanged on the hub. Servers invoke ProgressTarget
// on clients, clients invoke NotifyTarget on the server.
type Invocation struct {
	Type      int               `json:"type"`
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

func progressFrame(payload string) Invocation {
	arg, _ := json.Marshal(payload)

	return Invocation{
		Type:      invocationType,
		Target:    ProgressTarget,
		Arguments: []json.RawMessage{arg},
	}
}

// Hub pushes progress events to WebSocket clients. A client may restrict
// itself to one operation with the "operation" query parameter.
type Hub struct {
	broadcaster    *broadcast.Broadcaster
	originPatterns []string
}

// NewHub creates a Hub. allowedOrigins are full origins such as
// "http://localhost:3000"; "*" accepts any origin.
func NewHub(b *broadcast.Broadcaster, allowedOrigins []string) *Hub {
	return &Hub{
		broadcaster:    b,
		originPatterns: originPatterns(allowedOrigins),
	}
}

func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))

	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}

		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)

			continue
		}

		patterns = append(patterns, u.Host)
	}

	return patterns
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	// The connection outlives the server's request timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		logger.Debug("failed to accept websocket", "err", err)

		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var opts []broadcast.Option
	if id := r.URL.Query().Get("operation"); id != "" {
		opts = append(opts, broadcast.WithOperation(id))
	}

	sub := h.broadcaster.Subscribe(ctx, opts...)
	defer sub.Unsubscribe()

	logger.Debug("hub client connected", "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		h.readInvocations(ctx, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")

			return
		case ev, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")

				return
			}

			if ev.Kind == media.EventDurationKnown {
				continue
			}

			if err := h.write(ctx, conn, progressFrame(ev.Payload)); err != nil {
				logger.Debug("hub client gone", "err", err, "dropped", sub.Dropped())

				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, frame Invocation) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, frame)
}

// readInvocations handles client invocations until the connection closes.
func (h *Hub) readInvocations(ctx context.Context, conn *websocket.Conn) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		var in Invocation
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.Debug("failed to read hub frame", "err", err)
			}

			return
		}

		if in.Type != invocationType || in.Target != NotifyTarget || len(in.Arguments) == 0 {
			logger.Debug("ignoring hub frame", "type", in.Type, "target", in.Target)

			continue
		}

		var progress string
		if err := json.Unmarshal(in.Arguments[0], &progress); err != nil {
			logger.Debug("ignoring hub frame with a non-string argument", "err", err)

			continue
		}

		h.broadcaster.Publish(ctx, media.ProgressEvent{
			Kind:      media.EventStatusLine,
			Payload:   progress,
			Timestamp: time.Now(),
		})
	}
}
