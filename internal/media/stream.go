package media

import (
	"github.com/pion/webrtc/v4"
)

// Kind names the capture source a stream represents. Exactly one outbound
// stream is current at a time; switching kinds swaps tracks on live links
// instead of renegotiating.
type Kind int

const (
	KindCamera Kind = iota
	KindScreen
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// Stream is one outbound media stream: up to one video and one audio
// track. A nil track means the capability is disabled (device missing or
// permission denied), not an error.
type Stream struct {
	Kind       Kind
	VideoTrack *webrtc.TrackLocalStaticRTP
	AudioTrack *webrtc.TrackLocalStaticRTP

	source Source
}

// Tracks returns the stream's live tracks.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.VideoTrack != nil {
		tracks = append(tracks, s.VideoTrack)
	}
	if s.AudioTrack != nil {
		tracks = append(tracks, s.AudioTrack)
	}
	return tracks
}

// TrackOfKind returns the track matching a sender's kind, or nil when the
// capability is disabled.
func (s *Stream) TrackOfKind(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		if s.VideoTrack == nil {
			return nil
		}
		return s.VideoTrack
	case webrtc.RTPCodecTypeAudio:
		if s.AudioTrack == nil {
			return nil
		}
		return s.AudioTrack
	}
	return nil
}

// HasVideo reports whether the video capability is live.
func (s *Stream) HasVideo() bool { return s.VideoTrack != nil }

// HasAudio reports whether the audio capability is live.
func (s *Stream) HasAudio() bool { return s.AudioTrack != nil }

// Close stops the stream's source. Mandatory on leave: an unstopped
// source keeps writing into tracks nobody is bound to.
func (s *Stream) Close() {
	if s.source != nil {
		s.source.Stop()
	}
}
