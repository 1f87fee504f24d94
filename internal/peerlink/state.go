package peerlink

// State tracks a link through its negotiation lifecycle.
type State int32

const (
	// StateIdle: created, no local or remote description yet.
	StateIdle State = iota

	// StateNegotiating: descriptions being exchanged; early candidates
	// are buffered until the remote description lands.
	StateNegotiating

	// StateConnected: media and data flowing.
	StateConnected

	// StateClosed: terminal, resources released.
	StateClosed

	// StateError: negotiation or transport failure; the owner decides
	// whether to rebuild the link.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
