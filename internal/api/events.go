package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/server"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

// statusMessage is the first frame sent on a new events connection
type statusMessage struct {
	Type string `json:"type"`
	server.Status
}

// handleWhatsAppEvents streams transport lifecycle events to the panel
func (s *Server) handleWhatsAppEvents(w http.ResponseWriter, r *http.Request) {
	if s.wa == nil {
		writeError(w, http.StatusServiceUnavailable, "whatsapp transport not configured")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("Failed to accept websocket", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	events, unsubscribe := s.wa.Subscribe()
	defer unsubscribe()

	// The panel never sends frames; CloseRead cancels ctx when it disconnects.
	ctx := conn.CloseRead(r.Context())

	if err := writeEvent(ctx, conn, statusMessage{Type: "status", Status: s.wa.Status()}); err != nil {
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				s.log.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
