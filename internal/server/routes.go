package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/signaling"
)

// Configure the websocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browsers connect from the meeting webapp's origin; in production
	// this would check r.Header.Get("Origin") against that domain.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that upgrades requests into signal
// channels registered with the hub.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}

		client := signaling.NewClient(hub, conn, make(chan *protocol.Message, 256))

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// NewMux wires the full relay HTTP surface: websocket signaling plus the
// side-effect-free status queries.
func NewMux(hub *signaling.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(hub))
	mux.HandleFunc("GET /health", Health(hub))
	mux.HandleFunc("GET /{$}", Health(hub))
	mux.HandleFunc("GET /rooms/{roomID}", RoomStatus(hub))
	return mux
}
