package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same policy as the CORS headers: any origin may listen.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleEvents streams sync notifications over a websocket. The first message
// is always an init event.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.deps().Events
	if hub == nil {
		s.writeError(w, http.StatusNotFound, "Not found", "events are not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.logger.Debugf("Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id, events := hub.Register()
	defer hub.Unregister(id)
	s.logger.Debugf("Event listener %d connected from %s", id, r.RemoteAddr)

	// Clients never send anything; reading only detects them going away and
	// handles pongs.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, realtime.Event{Type: realtime.TypeInit}); err != nil {
		return
	}

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			s.logger.Debugf("Event listener %d disconnected", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				s.logger.Debugf("Dropping event listener %d: %v", id, err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev realtime.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
	return conn.WriteJSON(ev)
}
