package peerlink

import "github.com/vmihailenco/msgpack/v5"

// Data channel message types.
const (
	DataTypeHello = "hello"
	DataTypePing  = "ping"
	DataTypePong  = "pong"
)

// DataMessage represents all peer data channel messages.
type DataMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload introduces a peer once the data channel opens.
type HelloPayload struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

// PingPayload carries a latency probe; pong echoes it back unchanged.
type PingPayload struct {
	Seq    uint64 `msgpack:"seq"`
	SentAt int64  `msgpack:"sentAt"`
}

// DecodePayload decodes the message payload into the provided struct.
func (m DataMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewDataMessage creates a new DataMessage with the given type and payload.
func NewDataMessage(t string, payload any) (DataMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return DataMessage{}, err
	}

	return DataMessage{
		Type:    t,
		Payload: b,
	}, nil
}
