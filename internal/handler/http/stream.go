package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamMessage is one frame of the state stream.
type StreamMessage struct {
	Type string        `json:"type"`
	Data StateResponse `json:"data"`
}

// Stream handles GET /api/v1/{kind}/stream. It upgrades to a WebSocket, sends the
// current state and then every later state change. Slow readers only see the
// latest state.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	l := logger.FromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.streamOrigins,
	})
	if err != nil {
		l.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Incoming frames are ignored; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan engine.Snapshot, 1)
	unsubscribe := c.Subscribe(func(s engine.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	snap := c.Snapshot()
	if err := writeState(ctx, conn, snap); err != nil {
		return
	}
	last := snap.Version

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case s := <-updates:
			if s.Version <= last {
				continue
			}
			if err := writeState(ctx, conn, s); err != nil {
				if !errors.Is(err, context.Canceled) {
					l.DebugContext(r.Context(), "stream write failed", slog.String("error", err.Error()))
				}
				return
			}
			last = s.Version
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, s engine.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, StreamMessage{Type: "state", Data: newStateResponse(s)})
}

// OriginPatterns converts allowed CORS origins to the host patterns the
// WebSocket handshake checks.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
