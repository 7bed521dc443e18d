package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/gorilla/websocket"
)

// wsPushInterval is how often the live snapshot goes out to connected
// dashboards.
const wsPushInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard may be served from behind a reverse proxy
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebsocket streams the current-controls snapshot. One immediately on
// connect, then every push interval until the client goes away.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	// drain incoming frames so close and ping frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.controlsSnapshot(r)); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
