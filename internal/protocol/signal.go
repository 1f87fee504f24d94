package protocol

import (
	"encoding/json"
	"fmt"
)

// Signal body kinds. Candidates use the explicit "candidate" kind rather
// than an absent type so malformed bodies are distinguishable.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Candidate mirrors the browser RTCIceCandidateInit shape.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SignalBody is the decoded payload of a SignalEvent: an SDP description
// or a single ICE candidate. The relay never sees this type; it is the
// client-side contract for what travels inside the opaque envelope.
type SignalBody struct {
	Type      string     `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// ParseSignalBody decodes the opaque signal carried by an envelope.
func ParseSignalBody(raw json.RawMessage) (SignalBody, error) {
	var body SignalBody
	if len(raw) == 0 {
		return body, fmt.Errorf("%w: empty signal", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("%w: signal: %v", ErrMalformedPayload, err)
	}
	switch body.Type {
	case SignalOffer, SignalAnswer:
		if body.SDP == "" {
			return body, fmt.Errorf("%w: %s without sdp", ErrMalformedPayload, body.Type)
		}
	case SignalCandidate:
		if body.Candidate == nil {
			return body, fmt.Errorf("%w: candidate signal without candidate", ErrMalformedPayload)
		}
	default:
		return body, fmt.Errorf("%w: unknown signal type %q", ErrMalformedPayload, body.Type)
	}
	return body, nil
}

// EncodeSignalBody marshals a signal body for relaying.
func EncodeSignalBody(body SignalBody) json.RawMessage {
	b, _ := json.Marshal(body)
	return b
}
