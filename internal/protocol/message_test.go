package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTypedPayload(t *testing.T) {
	msg := MustMessage(TypeJoinRoom, JoinRoomPayload{
		RoomID:   "r1",
		UserID:   "u1",
		UserName: "Alice",
	})

	var p JoinRoomPayload
	if err := msg.Decode(&p); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.RoomID != "r1" || p.UserID != "u1" || p.UserName != "Alice" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestDecodeMalformedFailsFast(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"wrong types", `{"roomId": 5}`},
		{"not json", `{{{`},
		{"empty", ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &Message{Type: TypeJoinRoom, Payload: json.RawMessage(tc.payload)}
			var p JoinRoomPayload
			err := msg.Decode(&p)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestJoinRoomValidate(t *testing.T) {
	p := JoinRoomPayload{RoomID: "r1"}
	if err := p.Validate(); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected validation failure without userId, got %v", err)
	}

	p = JoinRoomPayload{RoomID: "r1", UserID: "u1"}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestParseSignalBody(t *testing.T) {
	mid := "0"
	idx := uint16(0)

	cases := []struct {
		name    string
		body    SignalBody
		wantErr bool
	}{
		{"offer", SignalBody{Type: SignalOffer, SDP: "v=0"}, false},
		{"answer", SignalBody{Type: SignalAnswer, SDP: "v=0"}, false},
		{"candidate", SignalBody{Type: SignalCandidate, Candidate: &Candidate{
			Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host", SDPMid: &mid, SDPMLineIndex: &idx,
		}}, false},
		{"offer without sdp", SignalBody{Type: SignalOffer}, true},
		{"candidate without candidate", SignalBody{Type: SignalCandidate}, true},
		{"unknown type", SignalBody{Type: "renegotiate"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := EncodeSignalBody(tc.body)
			got, err := ParseSignalBody(raw)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignalBody failed: %v", err)
			}
			if got.Type != tc.body.Type {
				t.Errorf("round trip changed type: %q -> %q", tc.body.Type, got.Type)
			}
		})
	}
}

func TestParseSignalBodyGarbage(t *testing.T) {
	if _, err := ParseSignalBody(json.RawMessage(`"hello"`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := ParseSignalBody(nil); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload for empty signal, got %v", err)
	}
}
