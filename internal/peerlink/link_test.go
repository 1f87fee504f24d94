package peerlink

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/media"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

type nopSource struct{}

func (nopSource) Start(*media.Stream) error { return nil }
func (nopSource) Stop()                     {}

type linkProbe struct {
	signals chan protocol.SignalBody
	states  chan State
	hellos  chan string
}

func newLinkProbe() *linkProbe {
	return &linkProbe{
		signals: make(chan protocol.SignalBody, 64),
		states:  make(chan State, 16),
		hellos:  make(chan string, 4),
	}
}

func (p *linkProbe) callbacks() Callbacks {
	return Callbacks{
		OnSignal:      func(_ string, body protocol.SignalBody) { p.signals <- body },
		OnStateChange: func(_ string, state State) { p.states <- state },
		OnPeerHello:   func(id, _ string) { p.hellos <- id },
	}
}

// waitSignal drains until a signal of the wanted kind arrives; gathering
// interleaves candidates with descriptions, so order is not fixed.
func (p *linkProbe) waitSignal(t *testing.T, kind string) protocol.SignalBody {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case body := <-p.signals:
			if body.Type == kind {
				return body
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s signal", kind)
		}
	}
}

func (p *linkProbe) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-p.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func newTestLink(t *testing.T, initiator bool, probe *linkProbe) *Link {
	t.Helper()
	l, err := New(Options{
		LocalID:    "local",
		LocalName:  "Local",
		RemoteID:   "remote",
		RemoteName: "Remote",
		Initiator:  initiator,
	}, probe.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Close)
	return l
}

// remoteOffer produces a real offer SDP from a throwaway peer connection.
func remoteOffer(t *testing.T) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	if _, err := pc.CreateDataChannel(dataChannelLabel, nil); err != nil {
		t.Fatal(err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	return offer.SDP
}

func TestInitiatorStartEmitsOffer(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, true, probe)

	if err := l.Start(nil); err != nil {
		t.Fatal(err)
	}

	offer := probe.waitSignal(t, protocol.SignalOffer)
	if offer.SDP == "" {
		t.Error("offer carries no SDP")
	}
	if l.State() != StateNegotiating {
		t.Errorf("expected Negotiating after offer, got %s", l.State())
	}
}

func TestNonInitiatorStartStaysIdle(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	if err := l.Start(nil); err != nil {
		t.Fatal(err)
	}
	if l.State() != StateIdle {
		t.Errorf("responder should wait for the offer, got %s", l.State())
	}
	select {
	case body := <-probe.signals:
		t.Errorf("responder emitted %s before any offer arrived", body.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResponderAnswersOffer(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	err := l.Signal(protocol.SignalBody{Type: protocol.SignalOffer, SDP: remoteOffer(t)})
	if err != nil {
		t.Fatal(err)
	}

	answer := probe.waitSignal(t, protocol.SignalAnswer)
	if answer.SDP == "" {
		t.Error("answer carries no SDP")
	}
	probe.waitState(t, StateNegotiating)
}

func TestCandidatesBufferedUntilDescription(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	mid := "0"
	idx := uint16(0)
	early := protocol.SignalBody{
		Type: protocol.SignalCandidate,
		Candidate: &protocol.Candidate{
			Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &idx,
		},
	}

	if err := l.Signal(early); err != nil {
		t.Fatalf("early candidate must be held, not rejected: %v", err)
	}
	l.mu.Lock()
	buffered := len(l.pendingCandidates)
	l.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected 1 buffered candidate, got %d", buffered)
	}
	if l.State() != StateIdle {
		t.Errorf("buffering must not advance the state, got %s", l.State())
	}

	if err := l.Signal(protocol.SignalBody{Type: protocol.SignalOffer, SDP: remoteOffer(t)}); err != nil {
		t.Fatal(err)
	}

	l.mu.Lock()
	buffered = len(l.pendingCandidates)
	l.mu.Unlock()
	if buffered != 0 {
		t.Errorf("buffer should flush with the remote description, %d left", buffered)
	}
}

func TestAnswerBeforeOfferFailsLink(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, true, probe)

	err := l.Signal(protocol.SignalBody{Type: protocol.SignalAnswer, SDP: "v=0"})
	if !errors.Is(err, ErrUnexpectedAnswer) {
		t.Fatalf("expected ErrUnexpectedAnswer, got %v", err)
	}
	probe.waitState(t, StateError)
	if l.State() != StateError {
		t.Errorf("expected Error state, got %s", l.State())
	}
}

func TestOfferToInitiatorFailsLink(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, true, probe)

	err := l.Signal(protocol.SignalBody{Type: protocol.SignalOffer, SDP: remoteOffer(t)})
	if !errors.Is(err, ErrUnexpectedOffer) {
		t.Fatalf("expected ErrUnexpectedOffer, got %v", err)
	}
	probe.waitState(t, StateError)
}

func TestUnknownSignalKindFailsLink(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	err := l.Signal(protocol.SignalBody{Type: "renegotiate"})
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
	if l.State() != StateError {
		t.Errorf("expected Error state, got %s", l.State())
	}
}

func TestClosedLinkRejectsEverything(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, true, probe)
	l.Close()

	if err := l.Start(nil); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("Start after close: expected ErrLinkClosed, got %v", err)
	}
	if err := l.Signal(protocol.SignalBody{Type: protocol.SignalOffer, SDP: "v=0"}); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("Signal after close: expected ErrLinkClosed, got %v", err)
	}
	if l.State() != StateClosed {
		t.Errorf("expected Closed, got %s", l.State())
	}

	// Idempotent.
	l.Close()
}

func TestAttachLocalStreamSwapsWithoutRenegotiation(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	camera, err := media.AcquireWith(media.KindCamera, true, true, nopSource{})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.AttachLocalStream(camera); err != nil {
		t.Fatal(err)
	}
	l.mu.Lock()
	hadVideo, hadAudio := l.videoSender != nil, l.audioSender != nil
	l.mu.Unlock()
	if !hadVideo || !hadAudio {
		t.Fatal("first attach should create both senders")
	}

	screen, err := media.AcquireWith(media.KindScreen, true, false, nopSource{})
	if err != nil {
		t.Fatal(err)
	}
	before := l.State()
	if err := l.AttachLocalStream(screen); err != nil {
		t.Fatal(err)
	}
	if l.State() != before {
		t.Errorf("attach changed state from %s to %s", before, l.State())
	}
}

func TestHelloIntroducesPeer(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	msg, err := NewDataMessage(DataTypeHello, HelloPayload{ID: "remote", Name: "Remote"})
	if err != nil {
		t.Fatal(err)
	}
	l.handleData(msg)

	select {
	case id := <-probe.hellos:
		if id != "remote" {
			t.Errorf("hello carried id %q", id)
		}
	default:
		t.Fatal("hello never surfaced")
	}
}

func TestPongUpdatesRTT(t *testing.T) {
	probe := newLinkProbe()
	l := newTestLink(t, false, probe)

	if l.RTT() != 0 {
		t.Error("RTT should be zero before the first pong")
	}

	msg, err := NewDataMessage(DataTypePong, PingPayload{
		Seq:    1,
		SentAt: time.Now().Add(-10 * time.Millisecond).UnixNano(),
	})
	if err != nil {
		t.Fatal(err)
	}
	l.handleData(msg)

	if rtt := l.RTT(); rtt < 10*time.Millisecond {
		t.Errorf("expected at least 10ms, got %s", rtt)
	}
}

// TestLoopbackPairConnects runs a full in-process negotiation between two
// links over host candidates.
func TestLoopbackPairConnects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live ICE negotiation in short mode")
	}

	aProbe, bProbe := newLinkProbe(), newLinkProbe()

	a, err := New(Options{LocalID: "aaa", LocalName: "A", RemoteID: "bbb", RemoteName: "B", Initiator: true}, aProbe.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(Options{LocalID: "bbb", LocalName: "B", RemoteID: "aaa", RemoteName: "A", Initiator: false}, bProbe.callbacks())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	relay := func(from *linkProbe, to *Link) {
		for body := range from.signals {
			if err := to.Signal(body); err != nil {
				return
			}
		}
	}
	go relay(aProbe, b)
	go relay(bProbe, a)

	if err := a.Start(nil); err != nil {
		t.Fatal(err)
	}

	waitConnected := func(name string, probe *linkProbe) {
		deadline := time.After(15 * time.Second)
		for {
			select {
			case state := <-probe.states:
				if state == StateConnected {
					return
				}
				if state == StateError {
					t.Fatalf("%s failed during negotiation", name)
				}
			case <-deadline:
				t.Fatalf("%s never connected", name)
			}
		}
	}
	waitConnected("initiator", aProbe)
	waitConnected("responder", bProbe)

	// The data channel introduces each side to the other.
	for _, probe := range []*linkProbe{aProbe, bProbe} {
		select {
		case <-probe.hellos:
		case <-time.After(10 * time.Second):
			t.Fatal("no hello over the data channel")
		}
	}
}
