package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

// Inbound is a decoded-enough websocket message together with the channel
// it arrived on.
type Inbound struct {
	Client *Client
	Msg    *protocol.Message
}

// Hub is the room registry: the authoritative map of room -> participants.
// All mutations happen on the Run goroutine, so a burst of events for one
// room delays, but cannot corrupt, another room's state. The mutex only
// exists so read-only status queries can run from HTTP handler goroutines.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients. Unregistering is
	// identical to an explicit leave.
	Unregister chan *Client

	// Inbound carries client messages into the hub for processing.
	Inbound chan *Inbound
}

// NewHub creates a new Hub instance. The hub is plain state with no
// goroutine of its own until Run is called.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound),
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all room state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// Not in a room yet; membership starts with a join-room message.
			slog.Debug("client registered", "client", client.addr)

		case client := <-h.Unregister:
			slog.Debug("client unregistered", "client", client.addr)
			h.leave(client)
			close(client.Send)

		case in := <-h.Inbound:
			h.dispatch(in.Client, in.Msg)
		}
	}
}

func (h *Hub) dispatch(c *Client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoinRoom:
		var p protocol.JoinRoomPayload
		if err := msg.Decode(&p); err != nil {
			h.sendError(c, err.Error())
			return
		}
		if err := p.Validate(); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.join(c, p)

	case protocol.TypeWebRTCSignal:
		var p protocol.SignalRelayPayload
		if err := msg.Decode(&p); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.relaySignal(c, p)

	case protocol.TypeChatMessage:
		var p protocol.ChatPayload
		if err := msg.Decode(&p); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.relayChat(c, p)

	case protocol.TypeMediaStateChange:
		var p protocol.MediaStatePayload
		if err := msg.Decode(&p); err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.relayMediaState(c, p)

	default:
		slog.Warn("unknown message type", "type", msg.Type, "client", c.addr)
	}
}

// join places the channel in a room, creating the room on first use.
// A channel belongs to at most one room: any previous membership is
// removed first, with a departure event to the old room. Re-joining with
// an id already present replaces the prior entry outright.
func (h *Hub) join(c *Client, p protocol.JoinRoomPayload) {
	h.mu.Lock()

	if c.RoomID != "" {
		h.removeLocked(c)
	}

	room, ok := h.rooms[p.RoomID]
	if !ok {
		room = newRoom(p.RoomID, time.Now())
		h.rooms[p.RoomID] = room
		slog.Info("room created", "room", p.RoomID)
	}

	if prior, ok := room.Participants[p.UserID]; ok && prior.client != c {
		// Last writer wins: the superseded channel is detached so its
		// eventual disconnect cannot evict the new entry.
		prior.client.RoomID = ""
		prior.client.UserID = ""
		prior.client.UserName = ""
	}

	room.Participants[p.UserID] = &Participant{
		ID:       p.UserID,
		Name:     p.UserName,
		JoinedAt: time.Now(),
		client:   c,
	}
	c.RoomID = p.RoomID
	c.UserID = p.UserID
	c.UserName = p.UserName

	joined := protocol.MustMessage(protocol.TypeUserJoined, protocol.UserJoinedEvent{
		UserID:       p.UserID,
		UserName:     p.UserName,
		Participants: room.roster(""),
	})
	for _, other := range room.Participants {
		if other.client == c {
			continue
		}
		h.trySend(other.client, joined)
	}

	h.trySend(c, protocol.MustMessage(protocol.TypeRoomJoined, protocol.RoomJoinedEvent{
		RoomID:       p.RoomID,
		Participants: room.roster(p.UserID),
	}))

	slog.Info("participant joined", "room", p.RoomID, "user", p.UserID, "participants", len(room.Participants))
	h.mu.Unlock()
}

// relaySignal fans a signaling envelope out to every other channel in the
// sender's room, tagged with the sender's identity. The relay never looks
// inside the signal; receivers filter on targetUserId themselves.
// Signals from a channel that is not in a room are silently dropped.
func (h *Hub) relaySignal(c *Client, p protocol.SignalRelayPayload) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.roomOf(c)
	if room == nil {
		return
	}

	msg := protocol.MustMessage(protocol.TypeWebRTCSignal, protocol.SignalEvent{
		FromUserID:   c.UserID,
		FromUserName: c.UserName,
		TargetUserID: p.TargetUserID,
		Signal:       p.Signal,
	})
	for _, other := range room.Participants {
		if other.client == c {
			continue
		}
		h.trySend(other.client, msg)
	}
}

// relayChat broadcasts a chat line to the whole room, sender included, so
// everyone (the sender's own UI too) sees the relay's canonical timestamp.
func (h *Hub) relayChat(c *Client, p protocol.ChatPayload) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.roomOf(c)
	if room == nil {
		return
	}

	msg := protocol.MustMessage(protocol.TypeChatMessage, protocol.ChatEvent{
		UserID:    c.UserID,
		UserName:  c.UserName,
		Message:   p.Message,
		Timestamp: time.Now(),
	})
	for _, member := range room.Participants {
		h.trySend(member.client, msg)
	}
}

// relayMediaState is advisory only; nothing is enforced server-side.
func (h *Hub) relayMediaState(c *Client, p protocol.MediaStatePayload) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.roomOf(c)
	if room == nil {
		return
	}

	msg := protocol.MustMessage(protocol.TypeParticipantMediaChange, protocol.MediaStateEvent{
		UserID:       c.UserID,
		VideoEnabled: p.VideoEnabled,
		AudioEnabled: p.AudioEnabled,
	})
	for _, other := range room.Participants {
		if other.client == c {
			continue
		}
		h.trySend(other.client, msg)
	}
}

// leave removes the channel from its room, if any. Explicit leave and
// connection drop take the same path.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// removeLocked drops c's membership, broadcasts the departure to the rest
// of the room, and deletes the room once empty. Caller holds h.mu.
func (h *Hub) removeLocked(c *Client) {
	room := h.roomOf(c)
	if room == nil {
		c.RoomID = ""
		return
	}

	// Only evict the entry if this channel still owns it; a replaced
	// entry belongs to the newer channel.
	if p, ok := room.Participants[c.UserID]; ok && p.client == c {
		delete(room.Participants, c.UserID)

		if len(room.Participants) == 0 {
			delete(h.rooms, room.ID)
			slog.Info("room deleted", "room", room.ID)
		} else {
			left := protocol.MustMessage(protocol.TypeUserLeft, protocol.UserLeftEvent{
				UserID:       c.UserID,
				UserName:     c.UserName,
				Participants: room.roster(""),
			})
			for _, other := range room.Participants {
				h.trySend(other.client, left)
			}
			slog.Info("participant left", "room", room.ID, "user", c.UserID, "participants", len(room.Participants))
		}
	}

	c.RoomID = ""
	c.UserID = ""
	c.UserName = ""
}

func (h *Hub) roomOf(c *Client) *Room {
	if c.RoomID == "" {
		return nil
	}
	return h.rooms[c.RoomID]
}

// trySend queues a message without ever blocking the hub loop. A client
// whose send buffer is full loses the message; its pumps will tear the
// connection down soon after the backlog grows.
func (h *Hub) trySend(c *Client, msg *protocol.Message) {
	select {
	case c.Send <- msg:
	default:
		slog.Warn("dropping message for slow client", "client", c.addr, "type", msg.Type)
	}
}

func (h *Hub) sendError(c *Client, text string) {
	h.trySend(c, protocol.MustMessage(protocol.TypeError, protocol.ErrorPayload{Error: text}))
}

// ParticipantSnapshot is a read-only view of one room member.
type ParticipantSnapshot struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoomInfo returns the current participants of a room. An unknown room
// yields an empty roster, not an error.
func (h *Hub) RoomInfo(roomID string) []ParticipantSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return []ParticipantSnapshot{}
	}

	snap := make([]ParticipantSnapshot, 0, len(room.Participants))
	for _, p := range room.Participants {
		snap = append(snap, ParticipantSnapshot{ID: p.ID, Name: p.Name, JoinedAt: p.JoinedAt})
	}
	return snap
}

// ActiveRooms reports how many rooms currently hold participants.
func (h *Hub) ActiveRooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
