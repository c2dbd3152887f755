package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bobarin/gigi/internal/metrics"
	"github.com/bobarin/gigi/internal/store"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the client.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// The feed is server to client only.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already restricted by the CORS layer and API key.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Events handles GET /v1/sessions/{id}/events
// It upgrades to a websocket and streams every store change of the session as JSON.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	events, cancel, err := h.wizard.Subscribe(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.log.Error().Err(err).Str("session", id.String()).Msg("failed to upgrade connection")
		return
	}

	logger := h.log.With().Str("session", id.String()).Logger()
	logger.Info().Msg("event feed connected")
	metrics.EventSubscribers.Inc()

	done := make(chan struct{})
	go func() {
		readPump(conn, logger)
		close(done)
	}()
	writePump(conn, events, done, logger)

	cancel()
	_ = conn.Close()
	metrics.EventSubscribers.Dec()
	logger.Info().Msg("event feed closed")
}

// readPump drains control frames so pongs are processed. It returns when the client goes away.
func readPump(conn *websocket.Conn, logger zerolog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		logger.Debug().Msg("ignoring client message")
	}
}

func writePump(conn *websocket.Conn, events <-chan store.Event, done <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Msg("failed to marshal event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn().Err(err).Msg("failed to write event")
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
