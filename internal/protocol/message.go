package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server event types.
const (
	TypeJoinRoom         = "join-room"
	TypeWebRTCSignal     = "webrtc-signal"
	TypeChatMessage      = "chat-message"
	TypeMediaStateChange = "media-state-change"
)

// Server to client event types.
const (
	TypeRoomJoined             = "room-joined"
	TypeUserJoined             = "user-joined"
	TypeUserLeft               = "user-left"
	TypeParticipantMediaChange = "participant-media-change"
	TypeError                  = "error"
)

// ErrMalformedPayload is returned when an event payload does not decode
// into its declared shape.
var ErrMalformedPayload = errors.New("malformed payload")

// NewMessage builds a Message of the given type with v marshaled as payload.
func NewMessage(msgType string, v any) (*Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Message{Type: msgType, Payload: b}, nil
}

// MustMessage is NewMessage for payloads built from our own structs,
// which cannot fail to marshal.
func MustMessage(msgType string, v any) *Message {
	m, err := NewMessage(msgType, v)
	if err != nil {
		panic(err)
	}
	return m
}

// Decode unmarshals the message payload into v, failing fast on
// malformed input instead of propagating zero values.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrMalformedPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, m.Type, err)
	}
	return nil
}

// ParticipantInfo is the roster entry shared with every presence event.
type ParticipantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JoinRoomPayload asks the relay to place this channel in a room.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Validate rejects join requests that would corrupt room bookkeeping.
func (p *JoinRoomPayload) Validate() error {
	if p.RoomID == "" || p.UserID == "" {
		return fmt.Errorf("%w: join-room requires roomId and userId", ErrMalformedPayload)
	}
	return nil
}

// SignalRelayPayload carries an opaque WebRTC signal toward one participant.
// The relay never inspects Signal.
type SignalRelayPayload struct {
	TargetUserID string          `json:"targetUserId"`
	Signal       json.RawMessage `json:"signal"`
}

// SignalEvent is the relayed envelope, tagged with the sender's identity.
// Receivers discard envelopes whose TargetUserID is not their own.
type SignalEvent struct {
	FromUserID   string          `json:"fromUserId"`
	FromUserName string          `json:"fromUserName"`
	TargetUserID string          `json:"targetUserId"`
	Signal       json.RawMessage `json:"signal"`
}

// ChatPayload is a chat line from a client.
type ChatPayload struct {
	Message string `json:"message"`
}

// ChatEvent is the relay's broadcast of a chat line, stamped with the
// relay clock so every participant sees one canonical ordering.
type ChatEvent struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MediaStatePayload advertises the sender's current mute/camera state.
type MediaStatePayload struct {
	VideoEnabled bool `json:"videoEnabled"`
	AudioEnabled bool `json:"audioEnabled"`
}

// MediaStateEvent is the advisory fan-out of a participant's media state.
type MediaStateEvent struct {
	UserID       string `json:"userId"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
}

// RoomJoinedEvent confirms a join. Participants holds everyone already in
// the room; the joiner is never included in its own roster.
type RoomJoinedEvent struct {
	RoomID       string            `json:"roomId"`
	Participants []ParticipantInfo `json:"participants"`
}

// UserJoinedEvent announces a new participant to the rest of the room,
// with the full updated roster for display.
type UserJoinedEvent struct {
	UserID       string            `json:"userId"`
	UserName     string            `json:"userName"`
	Participants []ParticipantInfo `json:"participants"`
}

// UserLeftEvent announces a departure with the remaining roster.
type UserLeftEvent struct {
	UserID       string            `json:"userId"`
	UserName     string            `json:"userName"`
	Participants []ParticipantInfo `json:"participants"`
}

// ErrorPayload carries a relay-side rejection back to the offending client.
type ErrorPayload struct {
	Error string `json:"error"`
}
