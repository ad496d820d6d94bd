package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// IndexHandler serves the embedded dashboard HTML/JS.
func IndexHandler(staticFS fs.FS) http.Handler {
	subFS, _ := fs.Sub(staticFS, "static")
	return http.FileServer(http.FS(subFS))
}

// StateHandler returns the current state snapshot as JSON.
// GET /api/state
func StateHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		snapshot := store.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

var upgrader = websocket.Upgrader{
	// The dashboard is typically served from the same origin as the
	// scheduler's web server, but allow cross-origin polling from a
	// separately hosted front end during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// EventsHandler upgrades the connection to a websocket and streams
// scheduler events to the browser as JSON text frames.
// GET /api/events
func EventsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		client := NewClient(generateID())
		hub.Register(client)
		defer hub.Unregister(client)

		// Discard anything the browser sends (keeps the read pump
		// draining so control frames like pong/close are processed).
		go func() {
			for {
				if _, _, err := conn.NextReader(); err != nil {
					hub.Unregister(client)
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-client.events:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

// generateID generates a random client ID.
func generateID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte("fallback"))
	}
	return hex.EncodeToString(bytes)
}
