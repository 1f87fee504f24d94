package signalclient

import (
	"log/slog"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

// Handler decodes incoming relay events and hands them to callbacks in
// arrival order. Start runs on a single goroutine, so per-sender signal
// ordering is preserved all the way into the negotiation logic.
type Handler struct {
	client *Client

	OnRoomJoined  func(protocol.RoomJoinedEvent)
	OnUserJoined  func(protocol.UserJoinedEvent)
	OnUserLeft    func(protocol.UserLeftEvent)
	OnSignal      func(protocol.SignalEvent)
	OnChat        func(protocol.ChatEvent)
	OnMediaChange func(protocol.MediaStateEvent)
	OnError       func(string)

	// OnDisconnect fires once when the relay connection ends.
	OnDisconnect func()
}

// NewHandler creates a message handler for the given client.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Start consumes relay events until the connection closes. Run it on its
// own goroutine.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {
		h.dispatch(msg)
	}

	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Handler) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeRoomJoined:
		var ev protocol.RoomJoinedEvent
		if h.decode(msg, &ev) && h.OnRoomJoined != nil {
			h.OnRoomJoined(ev)
		}

	case protocol.TypeUserJoined:
		var ev protocol.UserJoinedEvent
		if h.decode(msg, &ev) && h.OnUserJoined != nil {
			h.OnUserJoined(ev)
		}

	case protocol.TypeUserLeft:
		var ev protocol.UserLeftEvent
		if h.decode(msg, &ev) && h.OnUserLeft != nil {
			h.OnUserLeft(ev)
		}

	case protocol.TypeWebRTCSignal:
		var ev protocol.SignalEvent
		if h.decode(msg, &ev) && h.OnSignal != nil {
			h.OnSignal(ev)
		}

	case protocol.TypeChatMessage:
		var ev protocol.ChatEvent
		if h.decode(msg, &ev) && h.OnChat != nil {
			h.OnChat(ev)
		}

	case protocol.TypeParticipantMediaChange:
		var ev protocol.MediaStateEvent
		if h.decode(msg, &ev) && h.OnMediaChange != nil {
			h.OnMediaChange(ev)
		}

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if h.decode(msg, &p) && h.OnError != nil {
			h.OnError(p.Error)
		}

	default:
		slog.Debug("ignoring unknown relay event", "type", msg.Type)
	}
}

func (h *Handler) decode(msg *protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		slog.Warn("dropping malformed relay event", "type", msg.Type, "err", err)
		return false
	}
	return true
}
