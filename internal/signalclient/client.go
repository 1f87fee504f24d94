package signalclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the websocket connection to the signaling relay: one
// persistent signal channel per process.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Message, 32),
		outgoing:  make(chan *protocol.Message, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.serverURL, err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the websocket connection. Closing the
// incoming channel is how consumers learn the relay link dropped.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.incoming <- &msg
	}
}

// writePump writes messages to the websocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the relay. Messages queued after Close are
// dropped.
func (c *Client) Send(msg *protocol.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Incoming returns the channel of relay events. It is closed when the
// relay connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close shuts the signal channel down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// JoinRoom asks the relay to place this channel in roomID.
func (c *Client) JoinRoom(roomID, userID, userName string) {
	c.Send(protocol.MustMessage(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
	}))
}

// SendSignal relays a negotiation payload toward one participant.
func (c *Client) SendSignal(targetUserID string, body protocol.SignalBody) error {
	c.Send(protocol.MustMessage(protocol.TypeWebRTCSignal, protocol.SignalRelayPayload{
		TargetUserID: targetUserID,
		Signal:       protocol.EncodeSignalBody(body),
	}))
	return nil
}

// SendChat relays a chat line to the room.
func (c *Client) SendChat(text string) error {
	c.Send(protocol.MustMessage(protocol.TypeChatMessage, protocol.ChatPayload{Message: text}))
	return nil
}

// SendMediaState advertises the local mute/camera state to the room.
func (c *Client) SendMediaState(videoEnabled, audioEnabled bool) error {
	c.Send(protocol.MustMessage(protocol.TypeMediaStateChange, protocol.MediaStatePayload{
		VideoEnabled: videoEnabled,
		AudioEnabled: audioEnabled,
	}))
	return nil
}
