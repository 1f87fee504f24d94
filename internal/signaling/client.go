package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers fit well within this.
	maxMessageSize = 64 * 1024
)

// Client is a wrapper for a single websocket connection (one signal channel).
// The hub fills in RoomID/UserID/UserName once the channel joins a room.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// Send is a buffered channel for all outbound messages. The hub writes
	// to it; WritePump drains it onto the websocket.
	Send chan *protocol.Message

	// Membership, owned by the hub. Empty RoomID means not in any room.
	RoomID   string
	UserID   string
	UserName string

	// addr identifies the connection in logs.
	addr string
}

// NewClient wraps an upgraded websocket connection for the hub. The caller
// still has to register the client and start its pumps.
func NewClient(hub *Hub, conn *websocket.Conn, send chan *protocol.Message) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		Send: send,
		addr: conn.RemoteAddr().String(),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "client", c.addr, "err", err)
			}
			break
		}

		c.Hub.Inbound <- &Inbound{Client: c, Msg: &msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				slog.Warn("websocket write failed", "client", c.addr, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
