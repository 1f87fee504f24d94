package peerlink

import "errors"

var (
	// ErrLinkClosed indicates the link has been closed.
	ErrLinkClosed = errors.New("peer link is closed")

	// ErrConnectionFailed indicates the WebRTC connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrICEFailed indicates ICE connectivity could not be established.
	ErrICEFailed = errors.New("ICE connection failed")

	// ErrUnexpectedOffer indicates an offer arrived on the initiating side.
	ErrUnexpectedOffer = errors.New("unexpected offer from non-initiator")

	// ErrUnexpectedAnswer indicates an answer arrived with no offer outstanding.
	ErrUnexpectedAnswer = errors.New("unexpected answer without local offer")

	// ErrInvalidSignal indicates a signal payload that cannot be applied.
	ErrInvalidSignal = errors.New("invalid signal payload")
)
