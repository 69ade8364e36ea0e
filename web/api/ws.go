package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsHandler streams the same events as the SSE endpoint over a
// websocket, for clients that prefer a bidirectional transport.
func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[api] websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		client := make(chan SSEEvent, 8)
		s.sseHub.register <- client
		defer func() { s.sseHub.unregister <- client }()

		// Read loop detects disconnects; inbound messages are ignored.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						log.Printf("[api] websocket read error: %v", err)
					}
					return
				}
			}
		}()

		for {
			select {
			case event, ok := <-client:
				if !ok {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
