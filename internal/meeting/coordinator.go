package meeting

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/media"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/peerlink"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/protocol"
)

// ErrNegotiationFailed reports a peer that stayed unreachable after every
// retry. The session itself remains usable.
var ErrNegotiationFailed = errors.New("could not connect to participant")

// SignalSender is the slice of the signal channel the coordinator needs.
// *signalclient.Client satisfies it.
type SignalSender interface {
	SendSignal(targetUserID string, body protocol.SignalBody) error
	SendChat(text string) error
	SendMediaState(videoEnabled, audioEnabled bool) error
}

// Config tunes link retry behavior.
type Config struct {
	// MaxAttempts bounds how often a failing link is rebuilt before it is
	// abandoned and surfaced as failed.
	MaxAttempts int

	// RetryBackoff scales with the attempt number, capped at MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	ICEServers []webrtc.ICEServer
}

// DefaultConfig returns the retry tuning used in production.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		RetryBackoff: 500 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
	}
}

// Events carry coordinator output upward to the consuming UI.
type Events struct {
	OnPeerState   func(remoteID string, state peerlink.State)
	OnPeerFailed  func(remoteID string, err error)
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
	OnChat        func(protocol.ChatEvent)
	OnMediaChange func(protocol.MediaStateEvent)
	OnRoster      func([]protocol.ParticipantInfo)
}

// Coordinator turns room presence into exactly one peer link per remote
// participant and owns the shared outbound stream. Signal application is
// serialized per peer by the single handler goroutine that feeds the
// Handle methods.
type Coordinator struct {
	mu sync.Mutex

	localID   string
	localName string

	cfg    Config
	sender SignalSender
	events Events

	links    map[string]*peerlink.Link
	names    map[string]string
	attempts map[string]int

	// Peers learned before the outbound stream was ready; links are
	// created for all of them the moment the stream lands.
	pending map[string]string

	retryTimers map[string]*time.Timer

	stream *media.Stream

	closed bool
}

// New creates a coordinator for the local participant.
func New(localID, localName string, sender SignalSender, cfg Config, events Events) *Coordinator {
	return &Coordinator{
		localID:     localID,
		localName:   localName,
		cfg:         cfg,
		sender:      sender,
		events:      events,
		links:       make(map[string]*peerlink.Link),
		names:       make(map[string]string),
		attempts:    make(map[string]int),
		pending:     make(map[string]string),
		retryTimers: make(map[string]*time.Timer),
	}
}

// initiates applies the deterministic initiator rule: the side with the
// lexicographically smaller id sends the first offer. Both sides evaluate
// the same comparison, so a pair always agrees without extra signaling.
func (c *Coordinator) initiates(remoteID string) bool {
	return c.localID < remoteID
}

// HandleRoomJoined processes the initial roster: everyone already present
// becomes a peer link (or a pending one until the stream is ready).
func (c *Coordinator) HandleRoomJoined(ev protocol.RoomJoinedEvent) {
	for _, p := range ev.Participants {
		c.considerPeer(p.ID, p.Name)
	}
	if c.events.OnRoster != nil {
		c.events.OnRoster(ev.Participants)
	}
}

// HandleUserJoined processes a presence event for one new participant.
func (c *Coordinator) HandleUserJoined(ev protocol.UserJoinedEvent) {
	c.considerPeer(ev.UserID, ev.UserName)
	if c.events.OnRoster != nil {
		c.events.OnRoster(ev.Participants)
	}
}

func (c *Coordinator) considerPeer(id, name string) {
	if id == c.localID {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.names[id] = name
	if c.stream == nil {
		// No outbound stream yet; create the link when it arrives.
		c.pending[id] = name
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.ensureLink(id, name, c.initiates(id))
}

// HandleUserLeft destroys the departed participant's link and releases
// everything it held.
func (c *Coordinator) HandleUserLeft(ev protocol.UserLeftEvent) {
	c.dropPeer(ev.UserID)
	if c.events.OnRoster != nil {
		c.events.OnRoster(ev.Participants)
	}
}

func (c *Coordinator) dropPeer(id string) {
	c.mu.Lock()
	link := c.links[id]
	delete(c.links, id)
	delete(c.names, id)
	delete(c.pending, id)
	delete(c.attempts, id)
	if t := c.retryTimers[id]; t != nil {
		t.Stop()
		delete(c.retryTimers, id)
	}
	c.mu.Unlock()

	if link != nil {
		link.Close()
	}
}

// HandleSignal applies one relayed envelope. Envelopes addressed to other
// participants are discarded here because the relay fans out room-wide.
// A signal from an unknown sender creates a non-initiating link first,
// covering signals that outrun their presence event.
func (c *Coordinator) HandleSignal(ev protocol.SignalEvent) {
	if ev.TargetUserID != c.localID {
		return
	}

	body, err := protocol.ParseSignalBody(ev.Signal)
	if err != nil {
		slog.Warn("dropping undecodable signal", "from", ev.FromUserID, "err", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	link := c.links[ev.FromUserID]
	c.names[ev.FromUserID] = ev.FromUserName
	c.mu.Unlock()

	if link == nil {
		link = c.ensureLink(ev.FromUserID, ev.FromUserName, false)
		if link == nil {
			return
		}
	}

	if err := link.Signal(body); err != nil {
		// The link is already in Error; the state callback drives the
		// retry, nothing more to do here.
		slog.Debug("signal application failed", "from", ev.FromUserID, "err", err)
	}
}

// HandleChat forwards a relayed chat event upward.
func (c *Coordinator) HandleChat(ev protocol.ChatEvent) {
	if c.events.OnChat != nil {
		c.events.OnChat(ev)
	}
}

// HandleMediaChange forwards a participant's advisory media state upward.
func (c *Coordinator) HandleMediaChange(ev protocol.MediaStateEvent) {
	if c.events.OnMediaChange != nil {
		c.events.OnMediaChange(ev)
	}
}

// ensureLink replaces any existing link for the id with a fresh one and
// starts it. Returns nil if the coordinator is closed or the link could
// not be built.
func (c *Coordinator) ensureLink(id, name string, initiator bool) *peerlink.Link {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	if old := c.links[id]; old != nil {
		delete(c.links, id)
		defer old.Close()
	}

	link, err := peerlink.New(peerlink.Options{
		LocalID:    c.localID,
		LocalName:  c.localName,
		RemoteID:   id,
		RemoteName: name,
		Initiator:  initiator,
		ICEServers: c.cfg.ICEServers,
	}, peerlink.Callbacks{
		OnSignal: func(remoteID string, body protocol.SignalBody) {
			if err := c.sender.SendSignal(remoteID, body); err != nil {
				slog.Warn("signal send failed", "peer", remoteID, "err", err)
			}
		},
		OnStateChange: c.handleLinkState,
		OnRemoteTrack: c.events.OnRemoteTrack,
	})
	if err != nil {
		c.mu.Unlock()
		slog.Error("peer link create failed", "peer", id, "err", err)
		return nil
	}

	c.links[id] = link
	delete(c.pending, id)
	stream := c.stream
	c.mu.Unlock()

	if err := link.Start(stream); err != nil {
		slog.Warn("peer link start failed", "peer", id, "err", err)
	}
	return link
}

// handleLinkState runs on link callback goroutines; it must not be called
// with c.mu held.
func (c *Coordinator) handleLinkState(remoteID string, state peerlink.State) {
	switch state {
	case peerlink.StateConnected:
		c.mu.Lock()
		c.attempts[remoteID] = 0
		c.mu.Unlock()

	case peerlink.StateError:
		c.scheduleRetry(remoteID)
	}

	if c.events.OnPeerState != nil {
		c.events.OnPeerState(remoteID, state)
	}
}

// scheduleRetry tears the failed link down and rebuilds it after a
// backoff, reapplying the deterministic initiator rule. Attempts are
// capped; past the cap the peer is reported failed and left alone.
func (c *Coordinator) scheduleRetry(remoteID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	link := c.links[remoteID]
	delete(c.links, remoteID)

	c.attempts[remoteID]++
	attempt := c.attempts[remoteID]
	name := c.names[remoteID]

	if attempt > c.cfg.MaxAttempts {
		delete(c.attempts, remoteID)
		c.mu.Unlock()

		if link != nil {
			link.Close()
		}
		slog.Warn("peer unreachable, giving up", "peer", remoteID, "attempts", attempt-1)
		if c.events.OnPeerFailed != nil {
			c.events.OnPeerFailed(remoteID, fmt.Errorf("%w: %s", ErrNegotiationFailed, remoteID))
		}
		return
	}

	backoff := min(time.Duration(attempt)*c.cfg.RetryBackoff, c.cfg.MaxBackoff)

	timer := time.AfterFunc(backoff, func() {
		c.mu.Lock()
		delete(c.retryTimers, remoteID)
		_, stillKnown := c.names[remoteID]
		closed := c.closed
		c.mu.Unlock()

		if closed || !stillKnown {
			return
		}
		c.ensureLink(remoteID, name, c.initiates(remoteID))
	})
	c.retryTimers[remoteID] = timer
	c.mu.Unlock()

	if link != nil {
		link.Close()
	}
	slog.Info("retrying peer connection", "peer", remoteID, "attempt", attempt, "backoff", backoff)
}

// SetLocalStream makes stream the current outbound source. Every active
// link is swapped before the old source is stopped, so no link ever holds
// a stale reference mid-switch. Peers that were waiting on a stream get
// their links created now.
func (c *Coordinator) SetLocalStream(stream *media.Stream) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}

	old := c.stream
	c.stream = stream

	links := make([]*peerlink.Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}

	waiting := make(map[string]string, len(c.pending))
	for id, name := range c.pending {
		waiting[id] = name
	}
	c.mu.Unlock()

	if stream != nil {
		for _, l := range links {
			if err := l.AttachLocalStream(stream); err != nil {
				slog.Warn("stream swap failed", "peer", l.RemoteID(), "err", err)
			}
		}
		for id, name := range waiting {
			c.ensureLink(id, name, c.initiates(id))
		}
		c.sender.SendMediaState(stream.HasVideo(), stream.HasAudio())
	}

	if old != nil {
		old.Close()
	}
}

// Stream returns the current outbound stream, nil before the first
// SetLocalStream.
func (c *Coordinator) Stream() *media.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// SendChat relays a chat line to the whole room.
func (c *Coordinator) SendChat(text string) error {
	return c.sender.SendChat(text)
}

// Link returns the live link for a remote participant, nil if none.
func (c *Coordinator) Link(remoteID string) *peerlink.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[remoteID]
}

// LinkCount reports how many links currently exist.
func (c *Coordinator) LinkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

// Close destroys every link and stops the outbound stream. This is the
// mandatory cleanup path for leave and relay disconnect alike.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	links := make([]*peerlink.Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.links = make(map[string]*peerlink.Link)

	for id, t := range c.retryTimers {
		t.Stop()
		delete(c.retryTimers, id)
	}

	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	if stream != nil {
		stream.Close()
	}
}
