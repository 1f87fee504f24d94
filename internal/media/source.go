package media

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Source feeds RTP into a stream's tracks. Frame capture and encoding
// live behind this interface; the connection core never touches devices
// directly.
type Source interface {
	// Start begins writing into the stream's tracks.
	Start(stream *Stream) error

	// Stop halts the source and releases whatever it holds. Idempotent.
	Stop()
}

const (
	videoClockRate = 90000
	audioClockRate = 48000
	packetInterval = 20 * time.Millisecond
)

// SyntheticSource generates placeholder RTP at a steady cadence. It stands
// in for real capture on headless clients and in tests; the packets are
// well-formed but carry no picture.
type SyntheticSource struct {
	mu       sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
	running  bool
}

// NewSyntheticSource creates an idle synthetic source.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{done: make(chan struct{})}
}

// Start begins the packet-writer goroutine.
func (s *SyntheticSource) Start(stream *Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	go s.writeLoop(stream)
	return nil
}

func (s *SyntheticSource) writeLoop(stream *Stream) {
	ticker := time.NewTicker(packetInterval)
	defer ticker.Stop()

	videoSeq := uint16(rand.Uint32())
	audioSeq := uint16(rand.Uint32())
	videoSSRC := rand.Uint32()
	audioSSRC := rand.Uint32()
	var videoTS, audioTS uint32

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		videoTS += videoClockRate / 50
		audioTS += audioClockRate / 50

		if stream.VideoTrack != nil {
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    96,
					SequenceNumber: videoSeq,
					Timestamp:      videoTS,
					SSRC:           videoSSRC,
				},
				Payload: make([]byte, 64),
			}
			videoSeq++
			if err := stream.VideoTrack.WriteRTP(pkt); err != nil {
				slog.Debug("synthetic video write failed", "err", err)
			}
		}

		if stream.AudioTrack != nil {
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    111,
					SequenceNumber: audioSeq,
					Timestamp:      audioTS,
					SSRC:           audioSSRC,
				},
				Payload: make([]byte, 32),
			}
			audioSeq++
			if err := stream.AudioTrack.WriteRTP(pkt); err != nil {
				slog.Debug("synthetic audio write failed", "err", err)
			}
		}
	}
}

// Stop halts the writer. Safe to call more than once.
func (s *SyntheticSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Acquire builds an outbound stream of the given kind. A capability whose
// track cannot be created is disabled rather than failing the whole
// acquisition, so a join proceeds without camera or microphone.
func Acquire(kind Kind, video, audio bool) (*Stream, error) {
	return AcquireWith(kind, video, audio, NewSyntheticSource())
}

// AcquireWith is Acquire with an explicit source, for callers that plug in
// real capture.
func AcquireWith(kind Kind, video, audio bool, source Source) (*Stream, error) {
	stream := &Stream{Kind: kind, source: source}
	streamID := kind.String()

	if video {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			slog.Warn("video unavailable, continuing without it", "err", err)
		} else {
			stream.VideoTrack = track
		}
	}

	if audio {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			slog.Warn("audio unavailable, continuing without it", "err", err)
		} else {
			stream.AudioTrack = track
		}
	}

	if source != nil {
		if err := source.Start(stream); err != nil {
			return nil, err
		}
	}

	return stream, nil
}
