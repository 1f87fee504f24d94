package peerlink

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/media"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

const dataChannelLabel = "meet-data"

// Callbacks carry link events upward. They are invoked without internal
// locks held and must not call back into the link synchronously from
// OnStateChange while handling an Error transition.
type Callbacks struct {
	// OnSignal hands outbound negotiation payloads to the signal channel.
	OnSignal func(remoteID string, body protocol.SignalBody)

	// OnStateChange reports every state transition except Closed, which
	// only the owner triggers.
	OnStateChange func(remoteID string, state State)

	// OnRemoteTrack fires for each inbound media track.
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)

	// OnPeerHello fires when the remote introduces itself over the data
	// channel.
	OnPeerHello func(remoteID, remoteName string)
}

// Link is one client's direct connection to one remote participant: a
// PeerConnection plus the negotiation state machine around it. At most one
// Link exists per remote participant id; the coordinator destroys the old
// one before creating a replacement.
type Link struct {
	mu sync.Mutex

	localID   string
	localName string

	remoteID   string
	remoteName string
	initiator  bool

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	videoSender *webrtc.RTPSender
	audioSender *webrtc.RTPSender

	// Candidates that arrived before the remote description; flushed in
	// arrival order once it is applied.
	pendingCandidates []webrtc.ICECandidateInit
	remoteDescSet     bool

	state  State
	closed bool

	pingSeq atomic.Uint64
	lastRTT atomic.Int64 // nanoseconds

	cb Callbacks
}

// Options configure a new link.
type Options struct {
	LocalID    string
	LocalName  string
	RemoteID   string
	RemoteName string

	// Initiator marks which side sends the first offer. Both sides derive
	// it from the same deterministic rule, so it is never negotiated.
	Initiator bool

	ICEServers []webrtc.ICEServer
}

// New creates an idle link. Start begins negotiation.
func New(opts Options, cb Callbacks) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := &Link{
		localID:    opts.LocalID,
		localName:  opts.LocalName,
		remoteID:   opts.RemoteID,
		remoteName: opts.RemoteName,
		initiator:  opts.Initiator,
		pc:         pc,
		state:      StateIdle,
		cb:         cb,
	}

	l.setupHandlers()
	return l, nil
}

func (l *Link) setupHandlers() {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		l.emitSignal(protocol.SignalBody{
			Type: protocol.SignalCandidate,
			Candidate: &protocol.Candidate{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			},
		})
	})

	l.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.setState(StateConnected)
		case webrtc.PeerConnectionStateFailed:
			l.fail(ErrConnectionFailed)
		}
	})

	l.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed {
			l.fail(ErrICEFailed)
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if l.cb.OnRemoteTrack != nil {
			l.cb.OnRemoteTrack(l.remoteID, track)
		}
	})

	// The non-initiating side receives the channel the initiator created.
	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}
		l.mu.Lock()
		l.dc = dc
		l.mu.Unlock()
		l.bindDataChannel(dc)
	})
}

// Start binds the outbound stream and, on the initiating side, opens the
// data channel and sends the first offer.
func (l *Link) Start(stream *media.Stream) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}

	if stream != nil {
		if err := l.addStreamLocked(stream); err != nil {
			l.mu.Unlock()
			return err
		}
	}

	if !l.initiator {
		l.mu.Unlock()
		return nil
	}

	dc, err := l.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("create data channel: %w", err)
	}
	l.dc = dc

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("set local description: %w", err)
	}
	changed := l.setStateLocked(StateNegotiating)
	l.mu.Unlock()

	l.bindDataChannel(dc)
	if changed {
		l.notifyState(StateNegotiating)
	}
	l.emitSignal(protocol.SignalBody{Type: protocol.SignalOffer, SDP: offer.SDP})
	return nil
}

func (l *Link) addStreamLocked(stream *media.Stream) error {
	if track := stream.TrackOfKind(webrtc.RTPCodecTypeVideo); track != nil {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		l.videoSender = sender
	}
	if track := stream.TrackOfKind(webrtc.RTPCodecTypeAudio); track != nil {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		l.audioSender = sender
	}
	return nil
}

// Signal applies one inbound negotiation payload. Out-of-order payloads
// move the link to Error and return the cause; they never panic.
func (l *Link) Signal(body protocol.SignalBody) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}

	switch body.Type {
	case protocol.SignalOffer:
		return l.applyOfferLocked(body)
	case protocol.SignalAnswer:
		return l.applyAnswerLocked(body)
	case protocol.SignalCandidate:
		return l.applyCandidateLocked(body)
	default:
		l.mu.Unlock()
		err := fmt.Errorf("%w: type %q", ErrInvalidSignal, body.Type)
		l.fail(err)
		return err
	}
}

// applyOfferLocked handles the remote offer: set it, answer it, flush any
// buffered candidates. Caller holds l.mu; the lock is released here.
func (l *Link) applyOfferLocked(body protocol.SignalBody) error {
	if l.initiator {
		l.mu.Unlock()
		l.fail(ErrUnexpectedOffer)
		return ErrUnexpectedOffer
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: body.SDP}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("set remote offer: %w", err)
	}
	l.remoteDescSet = true

	if err := l.flushCandidatesLocked(); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("set local description: %w", err)
	}

	changed := l.setStateLocked(StateNegotiating)
	l.mu.Unlock()

	if changed {
		l.notifyState(StateNegotiating)
	}
	l.emitSignal(protocol.SignalBody{Type: protocol.SignalAnswer, SDP: answer.SDP})
	return nil
}

func (l *Link) applyAnswerLocked(body protocol.SignalBody) error {
	if l.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		l.mu.Unlock()
		l.fail(ErrUnexpectedAnswer)
		return ErrUnexpectedAnswer
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: body.SDP}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("set remote answer: %w", err)
	}
	l.remoteDescSet = true

	if err := l.flushCandidatesLocked(); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return err
	}

	l.mu.Unlock()
	return nil
}

func (l *Link) applyCandidateLocked(body protocol.SignalBody) error {
	if body.Candidate == nil {
		l.mu.Unlock()
		err := fmt.Errorf("%w: empty candidate", ErrInvalidSignal)
		l.fail(err)
		return err
	}

	init := webrtc.ICECandidateInit{
		Candidate:     body.Candidate.Candidate,
		SDPMid:        body.Candidate.SDPMid,
		SDPMLineIndex: body.Candidate.SDPMLineIndex,
	}

	// Candidates may outrun the description that makes them applicable;
	// hold them until it lands.
	if !l.remoteDescSet {
		l.pendingCandidates = append(l.pendingCandidates, init)
		l.mu.Unlock()
		return nil
	}

	if err := l.pc.AddICECandidate(init); err != nil {
		l.mu.Unlock()
		l.fail(err)
		return fmt.Errorf("add ICE candidate: %w", err)
	}

	l.mu.Unlock()
	return nil
}

func (l *Link) flushCandidatesLocked() error {
	for _, init := range l.pendingCandidates {
		if err := l.pc.AddICECandidate(init); err != nil {
			return fmt.Errorf("flush ICE candidate: %w", err)
		}
	}
	l.pendingCandidates = nil
	return nil
}

// AttachLocalStream swaps the outbound tracks for a new stream without
// touching the session: a Connected link stays Connected across a
// camera-screen switch. A kind the new stream lacks stops sending.
func (l *Link) AttachLocalStream(stream *media.Stream) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}

	if l.videoSender != nil {
		if err := l.videoSender.ReplaceTrack(stream.TrackOfKind(webrtc.RTPCodecTypeVideo)); err != nil {
			return fmt.Errorf("replace video track: %w", err)
		}
	} else if track := stream.TrackOfKind(webrtc.RTPCodecTypeVideo); track != nil {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		l.videoSender = sender
	}

	if l.audioSender != nil {
		if err := l.audioSender.ReplaceTrack(stream.TrackOfKind(webrtc.RTPCodecTypeAudio)); err != nil {
			return fmt.Errorf("replace audio track: %w", err)
		}
	} else if track := stream.TrackOfKind(webrtc.RTPCodecTypeAudio); track != nil {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		l.audioSender = sender
	}

	return nil
}

func (l *Link) bindDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		msg, err := NewDataMessage(DataTypeHello, HelloPayload{ID: l.localID, Name: l.localName})
		if err == nil {
			l.sendData(msg)
		}
	})

	dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		var msg DataMessage
		if err := msgpack.Unmarshal(raw.Data, &msg); err != nil {
			slog.Debug("undecodable data channel message", "peer", l.remoteID, "err", err)
			return
		}
		l.handleData(msg)
	})
}

func (l *Link) handleData(msg DataMessage) {
	switch msg.Type {
	case DataTypeHello:
		var hello HelloPayload
		if err := msg.DecodePayload(&hello); err != nil {
			return
		}
		if l.cb.OnPeerHello != nil {
			l.cb.OnPeerHello(hello.ID, hello.Name)
		}

	case DataTypePing:
		var ping PingPayload
		if err := msg.DecodePayload(&ping); err != nil {
			return
		}
		if pong, err := NewDataMessage(DataTypePong, ping); err == nil {
			l.sendData(pong)
		}

	case DataTypePong:
		var ping PingPayload
		if err := msg.DecodePayload(&ping); err != nil {
			return
		}
		l.lastRTT.Store(time.Now().UnixNano() - ping.SentAt)
	}
}

// Ping sends a latency probe; the answer updates RTT.
func (l *Link) Ping() error {
	msg, err := NewDataMessage(DataTypePing, PingPayload{
		Seq:    l.pingSeq.Add(1),
		SentAt: time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}
	return l.sendData(msg)
}

func (l *Link) sendData(msg DataMessage) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrLinkClosed
	}

	b, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return dc.Send(b)
}

// RTT reports the last measured data channel round trip, zero before the
// first pong.
func (l *Link) RTT() time.Duration {
	return time.Duration(l.lastRTT.Load())
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RemoteID returns the remote participant id this link is keyed by.
func (l *Link) RemoteID() string { return l.remoteID }

// RemoteName returns the remote display name.
func (l *Link) RemoteName() string { return l.remoteName }

// Initiator reports whether this side sends the first offer.
func (l *Link) Initiator() bool { return l.initiator }

// Close releases the link. Terminal; no state callback fires because only
// the owner calls it.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.state = StateClosed
	pc := l.pc
	l.mu.Unlock()

	if err := pc.Close(); err != nil {
		slog.Debug("peer connection close", "peer", l.remoteID, "err", err)
	}
}

// setState moves to a new state unless closed or already failed, and
// notifies on change.
func (l *Link) setState(state State) {
	l.mu.Lock()
	changed := l.setStateLocked(state)
	l.mu.Unlock()

	if changed {
		l.notifyState(state)
	}
}

func (l *Link) setStateLocked(state State) bool {
	if l.closed || l.state == state || l.state == StateError {
		return false
	}
	l.state = state
	return true
}

func (l *Link) fail(err error) {
	l.mu.Lock()
	changed := false
	if !l.closed && l.state != StateError {
		l.state = StateError
		changed = true
	}
	l.mu.Unlock()

	if changed {
		slog.Warn("peer link failed", "peer", l.remoteID, "err", err)
		l.notifyState(StateError)
	}
}

func (l *Link) notifyState(state State) {
	if l.cb.OnStateChange != nil {
		l.cb.OnStateChange(l.remoteID, state)
	}
}

func (l *Link) emitSignal(body protocol.SignalBody) {
	if l.cb.OnSignal != nil {
		l.cb.OnSignal(l.remoteID, body)
	}
}
